// Package catalog contains the canonical catalog bounded context.
//
// Key concepts:
//   - Entity: a canonical catalog record (product, taxonomy term, customer, coupon, order)
//   - ExternalIDs: per-platform identifiers of the remote copies of an entity
//   - Tombstone: snapshot written in the same transaction as a hard delete
//   - RelationEdge: a dependent entity referencing another (product -> term)
package catalog

// Package integration contains the platform reconciliation bounded context.
//
// Key concepts:
//   - PlatformConfig: immutable settings of one external platform, loaded once at start
//   - PlatformClient: port through which a platform's remote resources are found and written
//   - Payload: tagged variants describing what is sent to each platform kind
//   - SyncAttempt: the recorded outcome of propagating one change to one platform
//   - InboundRecord: platform-neutral content of a webhook delivery
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration

package persistence

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidJSONKey is returned for registry keys that cannot be addressed safely
var ErrInvalidJSONKey = errors.New("persistence: invalid json key")

// jsonColumn builds single-key expressions over a JSON object column. Postgres
// uses jsonb operators; sqlite (tests, local runs) uses the JSON1 functions.
type jsonColumn struct {
	column  string
	dialect string
}

func newJSONColumn(db *gorm.DB, column string) jsonColumn {
	return jsonColumn{column: column, dialect: db.Dialector.Name()}
}

func (c jsonColumn) postgres() bool {
	return c.dialect == "postgres"
}

func sqlitePath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "\"\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidJSONKey, key)
	}
	return `$."` + key + `"`, nil
}

// Equals returns a condition matching rows whose object has key = value
func (c jsonColumn) Equals(key, value string) (string, []any, error) {
	if c.postgres() {
		return c.column + " ->> ? = ?", []any{key, value}, nil
	}
	path, err := sqlitePath(key)
	if err != nil {
		return "", nil, err
	}
	return "json_extract(" + c.column + ", ?) = ?", []any{path, value}, nil
}

// Set returns an expression writing key = value without touching other keys
func (c jsonColumn) Set(key, value string) (clause.Expr, error) {
	if c.postgres() {
		return gorm.Expr("COALESCE("+c.column+", '{}'::jsonb) || jsonb_build_object(?::text, ?::text)", key, value), nil
	}
	path, err := sqlitePath(key)
	if err != nil {
		return clause.Expr{}, err
	}
	return gorm.Expr("json_set(COALESCE("+c.column+", '{}'), ?, ?)", path, value), nil
}

// Remove returns an expression dropping key
func (c jsonColumn) Remove(key string) (clause.Expr, error) {
	if c.postgres() {
		return gorm.Expr("COALESCE("+c.column+", '{}'::jsonb) - ?::text", key), nil
	}
	path, err := sqlitePath(key)
	if err != nil {
		return clause.Expr{}, err
	}
	return gorm.Expr("json_remove(COALESCE("+c.column+", '{}'), ?)", path), nil
}

package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// execer is satisfied by both *sql.DB and *sql.Tx so read helpers can
// run inside or outside a transaction.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// marshalMeta encodes an opaque metadata document for storage. Empty
// documents are stored as NULL.
func marshalMeta(meta map[string]interface{}) (interface{}, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// unmarshalMeta decodes a stored metadata document. NULL and malformed
// documents both decode to nil; metadata is opaque and never worth
// failing a read for.
func unmarshalMeta(raw sql.NullString) map[string]interface{} {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return nil
	}
	return meta
}

// nullStr converts an optional string for storage: empty becomes NULL
// so UNIQUE columns treat absent values as distinct.
func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullTime converts an optional time for storage as unix seconds.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// timePtr converts a nullable unix-seconds column back to a time.
func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

// strOf unwraps a nullable text column.
func strOf(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}

// intOf unwraps a nullable integer column.
func intOf(v sql.NullInt64) int {
	if v.Valid {
		return int(v.Int64)
	}
	return 0
}

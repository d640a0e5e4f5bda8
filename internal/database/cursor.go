package database

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// searchCursor pins a search resumption point to the last row's
// (sort key, id) pair, plus the sort it was issued under so a cursor
// cannot silently resume a different ordering.
type searchCursor struct {
	SortBy SortField   `json:"s"`
	Order  SortOrder   `json:"o"`
	Key    interface{} `json:"k"`
	ID     int64       `json:"id"`
}

// groupCursor resumes an aggregation ordered by (count desc, value).
type groupCursor struct {
	Count int    `json:"c"`
	Value string `json:"v"`
}

func encodeCursor(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Cursors hold only plain scalars; this cannot fail.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeSearchCursor(s string, sortBy SortField, order SortOrder) (*searchCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var c searchCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	if c.SortBy != sortBy || c.Order != order {
		return nil, fmt.Errorf("cursor was issued for sort %s/%s, query uses %s/%s",
			c.SortBy, c.Order, sortBy, order)
	}
	return &c, nil
}

func decodeGroupCursor(s string) (*groupCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var c groupCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	return &c, nil
}

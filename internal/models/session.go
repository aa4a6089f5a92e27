package models

import "time"

// Session is a refresh-token grant. The raw token is never stored:
// TokenHash is the slow, salted hash that proves possession, and
// TokenIndex is a fast keyless digest used only to find the row in one
// lookup. TokenIndex is nil on rows created before the index column
// existed; those rows are found by a linear scan and backfilled on
// their first successful refresh.
type Session struct {
	ID         string
	UserID     string
	TokenHash  []byte
	TokenIndex *string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

func (s Session) HasIndex() bool {
	return s.TokenIndex != nil
}

package domain

import "context"

// MatchResult is the raw outcome published by a result feed. FeedID carries
// the feed's own identity so the resolver can reject a substituted feed.
type MatchResult struct {
	FeedID string
	Value  int64 // -1 pending, 0 away win, 1 home win, 2 draw
}

// Oracle is the result-feed collaborator. Implementations return
// ErrOracleUnavailable when the feed cannot be reached and
// ErrInvalidOracleData when the response cannot be parsed. The value is
// treated as untrusted until validated by the resolution engine.
type Oracle interface {
	Result(ctx context.Context, feedID string) (MatchResult, error)
}

package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// IndexVerifier checks that every declared index is live and matches its declaration.
type IndexVerifier interface {
	Verify(ctx context.Context) error
}

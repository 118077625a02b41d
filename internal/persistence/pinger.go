package persistence

import "context"

// Pinger is a backend whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Pinger = (*Postgres)(nil)
	_ Pinger = (*Mongo)(nil)
	_ Pinger = (*Redis)(nil)
)

package cache

import (
	"context"
	"time"
)

// ReportCache stores computed reports as JSON. Scope resolves a report name
// to the key for the current cache generation; callers read it once and use
// the same key for Get and Set, so a report built before Invalidate never
// lands in the newer generation.
type ReportCache interface {
	Scope(ctx context.Context, key string) (string, error)
	Get(ctx context.Context, scopedKey string, dest any) (bool, error)
	Set(ctx context.Context, scopedKey string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Scope(_ context.Context, key string) (string, error) {
	return key, nil
}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}

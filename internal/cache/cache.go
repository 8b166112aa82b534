package cache

import (
	"context"
	"strconv"
	"time"

	"rinkdesk/backend/internal/domain"
)

// ReportCache stores branch summaries. Invalidate bumps the branch
// generation, so a summary computed before it can never be read after it.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.Summary, bool, error)
	Set(ctx context.Context, key string, value *domain.Summary, ttl time.Duration) error
	Generation(ctx context.Context, branchID string) (int64, error)
	Invalidate(ctx context.Context, branchID string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.Summary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.Summary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

// ReportKey is the cache key for a branch summary over [from, to) taken at
// generation gen.
func ReportKey(branchID string, gen int64, from time.Time, to time.Time) string {
	return "report:" + branchID + ":g" + strconv.FormatInt(gen, 10) + ":" +
		from.UTC().Format(time.RFC3339) + ":" + to.UTC().Format(time.RFC3339)
}

func generationKey(branchID string) string {
	return "report-gen:" + branchID
}

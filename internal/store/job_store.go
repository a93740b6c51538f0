package store

import (
	"context"
	"errors"

	"github.com/dunamismax/photoflow/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
}

// UsageStore records per-job usage for billing and reporting.
type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

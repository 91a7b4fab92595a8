package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
)

type snapshotPruner interface {
	Prune(ctx context.Context, key string, cutoff time.Time) (int64, error)
}

type BasketRetentionJobParams struct {
	Logger     *logger.Logger
	Storage    snapshotPruner
	StorageKey string
	// Retention matches the basket TTL the redis storage applies natively.
	Retention time.Duration
	Metrics   *metrics.MaintenanceMetrics
}

// NewBasketRetentionJob deletes SQL basket snapshots idle for longer than the retention.
func NewBasketRetentionJob(params BasketRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("basket storage required")
	}
	if params.StorageKey == "" {
		return nil, fmt.Errorf("storage key required")
	}
	if params.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	return &basketRetentionJob{
		logg:      params.Logger,
		storage:   params.Storage,
		key:       params.StorageKey,
		retention: params.Retention,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

type basketRetentionJob struct {
	logg      *logger.Logger
	storage   snapshotPruner
	key       string
	retention time.Duration
	metrics   *metrics.MaintenanceMetrics
	now       func() time.Time
}

func (j *basketRetentionJob) Name() string { return "basket-retention" }

func (j *basketRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.storage.Prune(ctx, j.key, cutoff)
	if err != nil {
		return fmt.Errorf("basket retention: %w", err)
	}
	j.metrics.AddPruned(deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"storage_key":  j.key,
		"rows_deleted": deleted,
	}), "basket retention complete")
	return nil
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cornman/cornman-backend/pkg/logger"
	"gorm.io/gorm"
)

const defaultSnapshotRetentionDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type snapshotPruner interface {
	DeleteStaleBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type SnapshotRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Snapshots snapshotPruner
	Retention int
}

// NewSnapshotRetentionJob prunes cart snapshots nobody has written to within the retention window.
func NewSnapshotRetentionJob(params SnapshotRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot storage required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultSnapshotRetentionDays
	}
	return &snapshotRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		snapshots: params.Snapshots,
		retention: retention,
		now:       time.Now,
	}, nil
}

type snapshotRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	snapshots snapshotPruner
	retention int
	now       func() time.Time
}

func (j *snapshotRetentionJob) Name() string { return "cart-snapshot-retention" }

func (j *snapshotRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.snapshots.DeleteStaleBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("cart snapshot retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "cart snapshot retention complete")
	return nil
}

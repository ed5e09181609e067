// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package revocation

import (
	"context"
	"log/slog"
	"time"
)

// DefaultHousekeepingInterval is how often expired log rows are purged.
const DefaultHousekeepingInterval = time.Hour

// Housekeeper purges durable rows once their token has been expired for
// longer than the retention period.
//
// The durable tier is the audit trail, so purging is opt-in: a zero
// retention keeps every row and Sweep does nothing.
type Housekeeper struct {
	durable   DurableTier
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewHousekeeper creates a Housekeeper keeping rows for retention after
// their token expired.
func NewHousekeeper(durable DurableTier, interval, retention time.Duration, logger *slog.Logger) *Housekeeper {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	return &Housekeeper{
		durable:   durable,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Enabled reports whether a retention period was configured.
func (housekeeper *Housekeeper) Enabled() bool {
	return housekeeper.retention > 0
}

// Run purges on every tick until ctx is cancelled. It returns at once when
// purging is disabled.
func (housekeeper *Housekeeper) Run(ctx context.Context) {
	if !housekeeper.Enabled() {
		return
	}

	ticker := time.NewTicker(housekeeper.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			housekeeper.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep performs a single purge pass and returns the number of rows removed.
func (housekeeper *Housekeeper) Sweep(ctx context.Context) int64 {
	if !housekeeper.Enabled() {
		return 0
	}

	before := housekeeper.now().Add(-housekeeper.retention)

	deleted, err := housekeeper.durable.DeleteExpired(ctx, before)
	if err != nil {
		housekeeper.logger.ErrorContext(ctx, "revocation_housekeeping_failed", slog.Any("error", err))
		return 0
	}

	if deleted > 0 {
		housekeeper.logger.InfoContext(ctx, "revocation_housekeeping_done",
			slog.Int64("deleted", deleted),
			slog.Duration("retention", housekeeper.retention),
		)
	}

	return deleted
}

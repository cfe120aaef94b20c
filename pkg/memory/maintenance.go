package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Maintenance runs periodic store upkeep: it truncates the WAL so the
// database file stays compact, and refreshes the entries gauge.
type Maintenance struct {
	store    *Store
	logger   zerolog.Logger
	schedule string
	cron     *cron.Cron
}

// NewMaintenance builds a maintenance runner for the store. The schedule uses
// cron syntax with support for @every intervals.
func NewMaintenance(store *Store, schedule string, logger zerolog.Logger) *Maintenance {
	return &Maintenance{
		store:    store,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the job and begins the scheduler.
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc(m.schedule, m.run); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	m.cron.Start()
	m.logger.Info().Str("schedule", m.schedule).Msg("Maintenance scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info().Msg("Maintenance scheduler stopped")
}

func (m *Maintenance) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.store.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		m.logger.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	total, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Entries count failed")
		return
	}
	observability.SetMemoryEntries(total)
	m.logger.Debug().Int("entries", total).Msg("Maintenance pass complete")
}

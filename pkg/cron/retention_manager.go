package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/latoulicious/radio/pkg/database"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/robfig/cron/v3"
)

// ErrAlreadyRunning is returned by RunNow while a prune is in progress
var ErrAlreadyRunning = errors.New("history prune already in progress")

// Pruner deletes history older than a cutoff. *database.HistoryStore
// implements it.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (*database.PruneStats, error)
}

// RetentionManager prunes play history on a cron schedule
type RetentionManager struct {
	cron      *cron.Cron
	cronEntry cron.EntryID
	pruner    Pruner
	retention time.Duration
	schedule  string
	timeout   time.Duration
	logger    pipeline.Logger
	now       func() time.Time

	mutex     sync.RWMutex
	isRunning bool
	lastRun   time.Time
	lastStats *database.PruneStats
}

// NewRetentionManager schedules pruning of history older than
// cfg.Retention. The schedule uses six fields, seconds first.
func NewRetentionManager(pruner Pruner, cfg pipeline.HistoryConfig, logger pipeline.Logger) (*RetentionManager, error) {
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention must be > 0, got %s", cfg.Retention)
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	manager := &RetentionManager{
		cron:      cron.New(cron.WithSeconds()),
		pruner:    pruner,
		retention: cfg.Retention,
		schedule:  cfg.CleanupSchedule,
		timeout:   time.Minute,
		logger:    logger.With(pipeline.String("component", "retention")),
		now:       time.Now,
	}

	entryID, err := manager.cron.AddFunc(cfg.CleanupSchedule, manager.scheduledPrune)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.CleanupSchedule, err)
	}
	manager.cronEntry = entryID
	return manager, nil
}

// Start starts the scheduler and runs one prune straight away
func (rm *RetentionManager) Start() {
	rm.cron.Start()
	rm.logger.Info("Scheduled history pruning",
		pipeline.String("schedule", rm.schedule),
		pipeline.Duration("retention", rm.retention),
	)
	go rm.scheduledPrune()
}

func (rm *RetentionManager) scheduledPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), rm.timeout)
	defer cancel()

	if _, err := rm.RunNow(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			rm.logger.Debug("History prune already in progress, skipping")
			return
		}
		rm.logger.Error("Failed to prune history", pipeline.Error(err))
	}
}

// RunNow prunes immediately
func (rm *RetentionManager) RunNow(ctx context.Context) (*database.PruneStats, error) {
	rm.mutex.Lock()
	if rm.isRunning {
		rm.mutex.Unlock()
		return nil, ErrAlreadyRunning
	}
	rm.isRunning = true
	rm.mutex.Unlock()

	defer func() {
		rm.mutex.Lock()
		rm.isRunning = false
		rm.mutex.Unlock()
	}()

	cutoff := rm.now().Add(-rm.retention)
	stats, err := rm.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	rm.mutex.Lock()
	rm.lastRun = rm.now()
	rm.lastStats = stats
	rm.mutex.Unlock()
	return stats, nil
}

// Stop stops the scheduler and waits for a running prune to finish
func (rm *RetentionManager) Stop() {
	<-rm.cron.Stop().Done()
	rm.logger.Debug("Retention manager stopped")
}

// GetNextRun returns the next scheduled run time
func (rm *RetentionManager) GetNextRun() time.Time {
	return rm.cron.Entry(rm.cronEntry).Next
}

// IsRunning returns whether a prune is in progress
func (rm *RetentionManager) IsRunning() bool {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.isRunning
}

// LastRun returns when the last successful prune finished and what it removed
func (rm *RetentionManager) LastRun() (time.Time, *database.PruneStats) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.lastRun, rm.lastStats
}

// GetSchedule returns the cron schedule
func (rm *RetentionManager) GetSchedule() string {
	return rm.schedule
}

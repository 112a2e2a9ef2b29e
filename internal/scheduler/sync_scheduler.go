package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/syncer"
)

// EventCleanupEntry names the cron entry that purges old batch events.
const EventCleanupEntry = "event_cleanup"

const startTimeout = 30 * time.Second

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SyncStarter creates sync jobs; syncer.Orchestrator satisfies it.
type SyncStarter interface {
	StartSync(ctx context.Context, rt entities.ResourceType, cfg entities.JobConfig) (*entities.SyncJob, error)
}

// Config maps resource types to cron schedules. An empty schedule leaves
// the resource unscheduled.
type Config struct {
	Schedules    map[entities.ResourceType]string
	EventCleanup string
}

// ValidateCronSchedule checks a standard five field cron expression.
func ValidateCronSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// SyncScheduler starts incremental syncs on a cron schedule and enqueues
// the periodic batch event cleanup.
type SyncScheduler struct {
	starter SyncStarter
	cleanup func(ctx context.Context) error
	config  Config
	log     zerolog.Logger

	cron      *cron.Cron
	entries   map[string]cron.EntryID
	mu        sync.RWMutex
	isRunning bool
}

// NewSyncScheduler creates a new scheduler instance. cleanup may be nil.
func NewSyncScheduler(starter SyncStarter, cleanup func(ctx context.Context) error, config Config, log zerolog.Logger) *SyncScheduler {
	return &SyncScheduler{
		starter: starter,
		cleanup: cleanup,
		config:  config,
		log:     log.With().Str("component", "scheduler").Logger(),
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers every configured schedule and starts the cron runner.
// The scheduler stops when ctx is cancelled.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	for _, rt := range entities.ResourceTypes {
		schedule := s.config.Schedules[rt]
		if schedule == "" {
			continue
		}
		if err := s.add(rt.String(), schedule, func() { s.runSync(rt) }); err != nil {
			return err
		}
	}
	if s.config.EventCleanup != "" && s.cleanup != nil {
		if err := s.add(EventCleanupEntry, s.config.EventCleanup, s.runCleanup); err != nil {
			return err
		}
	}

	if len(s.entries) == 0 {
		s.log.Info().Msg("no schedules configured")
		return nil
	}

	s.cron.Start()
	s.isRunning = true

	for name, id := range s.entries {
		s.log.Info().
			Str("entry", name).
			Time("next_run", s.cron.Entry(id).Next).
			Msg("schedule registered")
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *SyncScheduler) add(name, schedule string, fn func()) error {
	if err := ValidateCronSchedule(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", schedule, name, err)
	}
	id, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

// Stop waits for running entries to return and stops the scheduler.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.log.Info().Msg("scheduler stopped")
}

// RunNow triggers an immediate incremental sync.
func (s *SyncScheduler) RunNow(rt entities.ResourceType) {
	go s.runSync(rt)
}

func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRuns returns the next activation of every registered entry.
func (s *SyncScheduler) NextRuns() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := make(map[string]time.Time, len(s.entries))
	if !s.isRunning {
		return next
	}
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// Entries lists the registered entry names in sorted order.
func (s *SyncScheduler) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *SyncScheduler) runSync(rt entities.ResourceType) {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	log := s.log.With().Str("resource_type", rt.String()).Logger()

	job, err := s.starter.StartSync(ctx, rt, entities.JobConfig{Incremental: true})
	if errors.Is(err, syncer.ErrSyncInProgress) {
		log.Info().Msg("scheduled sync skipped, a sync is already running")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("scheduled sync failed to start")
		return
	}
	log.Info().Str("job_id", job.ID).Msg("scheduled sync started")
}

func (s *SyncScheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	if err := s.cleanup(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to enqueue sync event cleanup")
		return
	}
	s.log.Debug().Msg("sync event cleanup enqueued")
}

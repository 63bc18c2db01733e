package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
	"github.com/synaptica-ai/studyrunner/pkg/store"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

// Scheduler recomputes the whole reminder window from the task list. Nothing
// is diffed: every run cancels first, then schedules afresh. Runs are
// serialised and each one reads the list after taking the lock, so the last
// run always reflects the newest write.
type Scheduler struct {
	mu        sync.Mutex
	kv        store.Store
	tasks     *tasks.Store
	reminders Reminders
	clock     clock.Clock
	limit     int
}

func NewScheduler(kv store.Store, ts *tasks.Store, reminders Reminders, clk clock.Clock, limit int) *Scheduler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Scheduler{kv: kv, tasks: ts, reminders: reminders, clock: clk, limit: limit}
}

// Attach makes the scheduler run after every task-list write.
func (s *Scheduler) Attach() {
	s.tasks.OnChange(func(ctx context.Context, _ []tasks.Task) {
		if _, err := s.Reschedule(ctx); err != nil {
			logger.Log.WithError(err).Error("Failed to reschedule reminders")
		}
	})
}

// Reschedule reads the persisted task list and rebuilds reminders from it.
// It returns the number of reminders scheduled.
func (s *Scheduler) Reschedule(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.tasks.All(ctx)
	if err != nil {
		return 0, err
	}
	return s.apply(ctx, all)
}

// Enabled reads the notifications flag; an unset flag counts as disabled.
func (s *Scheduler) Enabled(ctx context.Context) (bool, error) {
	var enabled bool
	if _, err := s.kv.Get(ctx, store.KeyNotificationsEnabled, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (s *Scheduler) apply(ctx context.Context, all []tasks.Task) (int, error) {
	if err := s.reminders.CancelAll(ctx); err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}

	enabled, err := s.Enabled(ctx)
	if err != nil {
		return 0, err
	}
	if !enabled {
		metrics.ObserveReminders(0)
		logger.Log.Debug("Notifications disabled, reminders cleared")
		return 0, nil
	}

	upcoming := SelectUpcoming(all, s.clock.Now(), s.limit)
	for _, t := range upcoming {
		if err := s.reminders.Schedule(ctx, ReminderFor(t)); err != nil {
			return 0, fmt.Errorf("schedule reminder %d: %w", t.TaskID, err)
		}
	}
	metrics.ObserveReminders(len(upcoming))
	logger.WithField("count", len(upcoming)).Info("Reminders scheduled")
	return len(upcoming), nil
}

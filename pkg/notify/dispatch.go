package notify

import (
	"context"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
)

// DueSource hands out reminders whose fire time has passed, removing them.
type DueSource interface {
	Due(ctx context.Context, now time.Time) ([]Reminder, error)
}

// Dispatcher polls a reminder outbox and delivers what is due.
type Dispatcher struct {
	source   DueSource
	deliver  func(context.Context, Reminder)
	clock    clock.Clock
	interval time.Duration
}

func NewDispatcher(source DueSource, deliver func(context.Context, Reminder), clk clock.Clock, interval time.Duration) *Dispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Dispatcher{source: source, deliver: deliver, clock: clk, interval: interval}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}

// Poll delivers everything due now and returns how many reminders fired.
func (d *Dispatcher) Poll(ctx context.Context) int {
	due, err := d.source.Due(ctx, d.clock.Now())
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to read due reminders")
		return 0
	}
	for _, r := range due {
		d.deliver(ctx, r)
	}
	return len(due)
}

// LogDelivery is the default delivery: it writes the reminder to the log.
func LogDelivery(_ context.Context, r Reminder) {
	logger.WithFields(map[string]interface{}{
		"reminder_id": r.ID,
		"task_index":  r.TaskIndex,
		"title":       r.Title,
	}).Info(r.Message)
}

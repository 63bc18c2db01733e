package pvt

import (
	"context"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
)

// Runner drives a session's ticks until the engine reaches a terminal phase
// or ctx is cancelled.
type Runner struct {
	session  *Session
	interval time.Duration
}

func NewRunner(s *Session, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Runner{session: s, interval: interval}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.WithField("session_id", r.session.ID).Debug("Reaction test runner cancelled")
			return
		case <-ticker.C:
			r.session.Tick()
			if r.session.Engine.Terminal() {
				return
			}
		}
	}
}

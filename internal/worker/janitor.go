package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ledger/internal/log"
	"ledger/internal/store"
)

// SessionJanitor deletes expired sessions.
type SessionJanitor struct {
	sessions store.SessionStore
	logger   *log.Logger
	now      func() time.Time
}

func NewSessionJanitor(sessions store.SessionStore, logger *log.Logger) *SessionJanitor {
	return &SessionJanitor{
		sessions: sessions,
		logger:   log.OrDefault(logger, log.ComponentScheduler),
		now:      time.Now,
	}
}

// Run purges once and reports how many sessions went.
func (j *SessionJanitor) Run(ctx context.Context) (int, error) {
	n, err := j.sessions.PurgeSessions(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "Expired sessions purged",
			log.FieldOperation, log.OpPurge,
			"count", n)
	}
	return n, nil
}

// Schedule runs the janitor on a standard cron spec such as "@hourly"
// until ctx ends. The returned cron is already started.
func (j *SessionJanitor) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := j.Run(ctx); err != nil {
			j.logger.ErrorContext(ctx, "Session purge failed", log.FieldError, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session purge %q: %w", spec, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

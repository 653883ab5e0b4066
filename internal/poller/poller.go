// Package poller wakes the workflow engine on a schedule to enforce batch
// deadlines and send reminders. The engine makes every wake idempotent, so
// the poller needs no state of its own.
package poller

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultInterval is the wake interval when none is configured.
const DefaultInterval = 5 * time.Minute

// Workflow is the slice of the engine the poller drives.
type Workflow interface {
	ForceDeadline(ctx context.Context) (bool, error)
	SendReminders(ctx context.Context) error
}

// Poller periodically checks deadlines and reminders.
type Poller struct {
	workflow Workflow
	interval time.Duration
	cronExpr string
}

// Opts holds parameters for creating a Poller.
type Opts struct {
	Workflow Workflow
	Interval time.Duration // defaults to DefaultInterval
	Cron     string        // optional 5-field cron expression, overrides Interval
}

// New creates a Poller.
func New(opts Opts) (*Poller, error) {
	if opts.Workflow == nil {
		return nil, fmt.Errorf("poller: workflow is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if opts.Cron != "" {
		if _, err := cronParser.Parse(opts.Cron); err != nil {
			return nil, fmt.Errorf("poller: parse cron %q: %w", opts.Cron, err)
		}
	}
	return &Poller{workflow: opts.Workflow, interval: interval, cronExpr: opts.Cron}, nil
}

// Poll runs one wake cycle: deadline enforcement first, then reminders.
// A reminder for a batch the deadline just closed would be noise, hence the
// order.
func (p *Poller) Poll(ctx context.Context) error {
	fired, err := p.workflow.ForceDeadline(ctx)
	if err != nil {
		return fmt.Errorf("poller: deadline check: %w", err)
	}
	if fired {
		return nil
	}
	if err := p.workflow.SendReminders(ctx); err != nil {
		return fmt.Errorf("poller: reminders: %w", err)
	}
	return nil
}

// Run polls until the context is cancelled. Cycle errors are logged and the
// loop keeps going.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("poller: started (interval %s)", p.scheduleDescription())
	for {
		if !p.sleep(ctx) {
			log.Printf("poller: stopped")
			return
		}
		if err := p.Poll(ctx); err != nil {
			log.Printf("poller: %v", err)
		}
	}
}

// sleep waits until the next wake. Reports false when the context ended.
func (p *Poller) sleep(ctx context.Context) bool {
	d := p.interval
	if p.cronExpr != "" {
		if next := untilNextCron(p.cronExpr, time.Now()); next > 0 {
			d = next
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Poller) scheduleDescription() string {
	if p.cronExpr != "" {
		return fmt.Sprintf("cron %q", p.cronExpr)
	}
	return p.interval.String()
}

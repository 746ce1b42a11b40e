package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RichardLi88/Waypoint/logging"
	"github.com/RichardLi88/Waypoint/store"
	"github.com/cenkalti/backoff/v4"
)

// Step is one idempotent write of a cascade. Steps are re-run from the
// failing step onward, so each must be safe to apply more than once.
type Step interface {
	Name() string
	Apply(ctx context.Context, db store.Store) error
}

// Cascade runs steps in order and retries each one on store failures.
type Cascade struct {
	db         store.Store
	newBackOff func() backoff.BackOff
}

func NewCascade(db store.Store, maxElapsed time.Duration) *Cascade {
	return &Cascade{
		db: db,
		newBackOff: func() backoff.BackOff {
			if maxElapsed <= 0 {
				return &backoff.StopBackOff{}
			}
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}
}

// Run applies steps sequentially. The caller's cancellation is not
// propagated once the first step starts, so a cascade never stops half way
// because a client went away.
func (c *Cascade) Run(ctx context.Context, name string, steps ...Step) error {
	ctx = context.WithoutCancel(ctx)
	for i, step := range steps {
		attempt := 0
		op := func() error {
			attempt++
			err := step.Apply(ctx, c.db)
			if err == nil || retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		notify := func(err error, wait time.Duration) {
			logging.Logger.Warnf("Event ID: CASCADE_STEP_RETRY, Description: %s step %d (%s) attempt %d failed, retrying in %s: %v", name, i+1, step.Name(), attempt, wait, err)
		}
		if err := backoff.RetryNotify(op, c.newBackOff(), notify); err != nil {
			logging.Logger.Errorf("Event ID: CASCADE_STEP_FAILED, Description: %s stopped at step %d (%s): %v", name, i+1, step.Name(), err)
			return fmt.Errorf("%s: step %d (%s): %w", name, i+1, step.Name(), err)
		}
		logging.Logger.Debugf("Event ID: CASCADE_STEP_APPLIED, Description: %s step %d (%s)", name, i+1, step.Name())
	}
	logging.Logger.Infof("Event ID: CASCADE_COMPLETED, Description: %s applied %d steps", name, len(steps))
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}

package device

import (
	"context"
	"time"

	"github.com/venturus/cdm-teller/internal/errors"
	"go.uber.org/zap"
)

// Predicate decides whether a decoded status snapshot satisfies a waiter.
// Predicates must derive "done" from the snapshot alone; the waiter always
// feeds them the freshest one.
type Predicate func(*Status) bool

// WaitUntil polls the device status until the predicate holds on a fresh
// snapshot. A failed poll counts the same as "not yet in the desired state"
// and the loop continues. With a zero timeout the wait is unbounded and ends
// only through the predicate or context cancellation.
func (c *Client) WaitUntil(ctx context.Context, pred Predicate, opts WaitOptions) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = 600 * time.Millisecond
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		status, err := c.Sense(ctx)
		if err != nil {
			c.log.Debug("status poll failed, retrying",
				zap.String("device_url", c.baseURL),
				zap.Error(err))
		} else {
			if opts.OnStatus != nil {
				opts.OnStatus(status)
			}
			if pred(status) {
				return nil
			}
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return errors.Newf(errors.ErrWaitTimeout, "device %s: condition not met within %s", c.baseURL, opts.Timeout)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrCanceled)
		case <-timer.C:
		}
	}
}

// WaitCountDone waits for end-of-count-or-idle: stand-by or ready-to-count.
func (c *Client) WaitCountDone(ctx context.Context, opts WaitOptions) error {
	return c.WaitUntil(ctx, (*Status).Idle, opts)
}

// WaitReady waits for the device to report ready-to-count.
func (c *Client) WaitReady(ctx context.Context, opts WaitOptions) error {
	return c.WaitUntil(ctx, (*Status).ReadyToCount, opts)
}

// WaitEscrowDoorClosed waits for the operator to close the escrow gate and
// the device to be ready again. Human-paced: callers pass no timeout.
func (c *Client) WaitEscrowDoorClosed(ctx context.Context, opts WaitOptions) error {
	return c.WaitUntil(ctx, func(s *Status) bool {
		return s.EscrowDoorClosed && s.ReadyToCount()
	}, opts)
}

// WaitCancelComplete waits for the fully cancelled state: stand-by plus
// login mode. Human-paced: callers pass no timeout.
func (c *Client) WaitCancelComplete(ctx context.Context, opts WaitOptions) error {
	return c.WaitUntil(ctx, (*Status).CancelComplete, opts)
}

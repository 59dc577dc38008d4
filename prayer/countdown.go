package prayer

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Tick is one countdown update.
type Tick struct {
	Prayer    Prayer        `json:"prayer"`
	Remaining time.Duration `json:"remaining"`
}

// Countdown tracks the time left until the next prayer.
type Countdown struct {
	clock clock.Clock

	mu       sync.RWMutex
	today    Schedule
	tomorrow *Schedule
}

// NewCountdown returns a countdown over the given schedules. A nil clock uses
// the wall clock.
func NewCountdown(clk clock.Clock, today Schedule, tomorrow *Schedule) *Countdown {
	if clk == nil {
		clk = clock.New()
	}
	return &Countdown{clock: clk, today: today, tomorrow: tomorrow}
}

// SetSchedule replaces the schedules, e.g. after midnight.
func (c *Countdown) SetSchedule(today Schedule, tomorrow *Schedule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.today = today
	c.tomorrow = tomorrow
}

// Current returns the next prayer and the time left until it.
func (c *Countdown) Current() (Tick, error) {
	c.mu.RLock()
	today, tomorrow := c.today, c.tomorrow
	c.mu.RUnlock()

	now := c.clock.Now()
	next, err := Next(today, tomorrow, now)
	if err != nil {
		return Tick{}, err
	}
	remaining := next.At.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Tick{Prayer: next, Remaining: remaining}, nil
}

// Run sends a tick immediately and then once per interval until ctx is
// done. The target prayer is recomputed on every tick, so the countdown moves
// on once a prayer time passes. Ticks are dropped while out is not ready.
func (c *Countdown) Run(ctx context.Context, interval time.Duration, out chan<- Tick) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	send := func() error {
		tick, err := c.Current()
		if err != nil {
			return err
		}
		select {
		case out <- tick:
		case <-ctx.Done():
		default:
		}
		return nil
	}

	if err := send(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := send(); err != nil {
				return err
			}
		}
	}
}

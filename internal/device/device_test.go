package device

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testOptions(clock *fakeClock) Options {
	return Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  clock.Now,
		Rand:   rand.New(rand.NewPCG(1, 2)),
	}
}

func newTestClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

// Package stabilizer decides when a newly observed file has finished being written.
package stabilizer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// Default polling parameters.
const (
	DefaultMaxChecks      = 10
	DefaultRequiredStable = 3
	MinInterval           = time.Second
)

// Outcome is the verdict of a stability check.
type Outcome int

const (
	// Unstable means the file never settled, or polling was cancelled.
	Unstable Outcome = iota
	// Stable means the file is safe to process.
	Stable
	// Vanished means the file disappeared while being observed.
	Vanished
)

func (o Outcome) String() string {
	switch o {
	case Stable:
		return "stable"
	case Vanished:
		return "vanished"
	default:
		return "unstable"
	}
}

// Result describes how a check concluded.
type Result struct {
	Outcome Outcome
	// Checks is the number of polls performed.
	Checks int
	// Size is the last observed size in bytes.
	Size int64
	// Lenient is set when the file was accepted without reaching the
	// required number of stable polls.
	Lenient bool
	// Err is set when polling stopped because the context ended.
	Err error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Detector polls a file's size until it stops changing.
type Detector struct {
	// Wait is the total polling budget.
	Wait time.Duration

	// MaxChecks is the number of polls the budget is split into.
	MaxChecks int

	// RequiredStable is the number of consecutive unchanged polls needed.
	RequiredStable int

	// Sleep waits between polls. Defaults to a context-aware timer.
	Sleep SleepFunc

	// Stat reads file info. Defaults to os.Stat.
	Stat func(path string) (fs.FileInfo, error)
}

// New creates a Detector with the default poll counts.
func New(wait time.Duration) *Detector {
	return &Detector{
		Wait:           wait,
		MaxChecks:      DefaultMaxChecks,
		RequiredStable: DefaultRequiredStable,
	}
}

// Interval returns the delay between polls: Wait / MaxChecks in whole
// seconds, never less than MinInterval.
func (d *Detector) Interval() time.Duration {
	interval := (d.Wait / time.Duration(d.maxChecks())).Truncate(time.Second)
	if interval < MinInterval {
		interval = MinInterval
	}
	return interval
}

// Check polls path until it is stable, vanishes, or the poll budget runs out.
//
// A poll counts towards stability when its size equals the previous poll's
// size and is non-zero; any other observation resets the streak. When every
// poll is used without reaching RequiredStable, the file is still accepted
// if the last observed size was non-zero.
func (d *Detector) Check(ctx context.Context, path string) Result {
	sleep := d.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	stat := d.Stat
	if stat == nil {
		stat = os.Stat
	}
	maxChecks := d.maxChecks()
	required := d.RequiredStable
	if required <= 0 {
		required = DefaultRequiredStable
	}
	interval := d.Interval()

	var lastSize int64 = -1
	stableCount := 0
	res := Result{Outcome: Unstable}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	for i := 0; i < maxChecks; i++ {
		if i > 0 {
			if err := sleep(ctx, interval); err != nil {
				res.Err = err
				return res
			}
		}

		res.Checks++
		info, err := stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.Outcome = Vanished
				return res
			}
			stableCount = 0
			lastSize = -1
			continue
		}

		size := info.Size()
		if size == lastSize && size > 0 {
			stableCount++
		} else {
			stableCount = 0
		}
		lastSize = size
		res.Size = size

		if stableCount >= required {
			res.Outcome = Stable
			return res
		}
	}

	if lastSize > 0 {
		res.Outcome = Stable
		res.Lenient = true
	}
	return res
}

func (d *Detector) maxChecks() int {
	if d.MaxChecks <= 0 {
		return DefaultMaxChecks
	}
	return d.MaxChecks
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

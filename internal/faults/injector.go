// Package faults provides a configurable fault hook used to exercise the
// saga compensation path under test. It is consulted by the credit step
// only and is forced inert in the production profile.
package faults

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSimulatedFailure marks a fault raised by the injector. Callers treat
// it like any other credit failure; only tests inspect it.
var ErrSimulatedFailure = errors.New("simulated credit failure")

// Mode selects how a triggered fault manifests.
type Mode string

const (
	// ModeError fails immediately.
	ModeError Mode = "error"
	// ModeDelay blocks for the configured duration before failing,
	// exercising timeout handling.
	ModeDelay Mode = "delay"
)

// Config controls the injector. Production forces the injector inert
// regardless of the other fields.
type Config struct {
	Enabled            bool
	Rate               float64 // probability of failure in [0,1]
	FailTransactionIDs []uuid.UUID
	Mode               Mode
	Delay              time.Duration
	Production         bool
}

// Injector decides, per transaction, whether the credit step should fail.
type Injector struct {
	enabled bool
	rate    float64
	failIDs map[uuid.UUID]struct{}
	mode    Mode
	delay   time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// New builds an injector from the config.
func New(cfg Config) *Injector {
	failIDs := make(map[uuid.UUID]struct{}, len(cfg.FailTransactionIDs))
	for _, id := range cfg.FailTransactionIDs {
		failIDs[id] = struct{}{}
	}

	rate := cfg.Rate
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeError
	}

	delay := cfg.Delay
	if delay <= 0 {
		delay = 30 * time.Second
	}

	return &Injector{
		enabled: cfg.Enabled && !cfg.Production,
		rate:    rate,
		failIDs: failIDs,
		mode:    mode,
		delay:   delay,
		rand:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Disabled returns an injector that never fails.
func Disabled() *Injector {
	return New(Config{})
}

// ShouldFail reports whether the transaction should fail: always for ids
// in the explicit set, otherwise with probability equal to the configured
// rate.
func (i *Injector) ShouldFail(transactionID uuid.UUID) bool {
	if !i.enabled {
		return false
	}
	if _, ok := i.failIDs[transactionID]; ok {
		return true
	}
	if i.rate <= 0 {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rand.Float64() < i.rate
}

// Check returns nil when the transaction should proceed. When a fault is
// triggered it either returns ErrSimulatedFailure immediately or, in delay
// mode, blocks for the configured duration first. The wait respects
// context cancellation.
func (i *Injector) Check(ctx context.Context, transactionID uuid.UUID) error {
	if !i.ShouldFail(transactionID) {
		return nil
	}

	if i.mode == ModeDelay {
		timer := time.NewTimer(i.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return ErrSimulatedFailure
}

// Package reentrancy provides a process-wide guard that serializes the
// engine's ledger-crossing operations and bounds nested call depth.
package reentrancy

import (
	"sync"

	"github.com/predictify/engine/internal/domain"
)

// MaxCallDepth bounds nested protected calls.
const MaxCallDepth = 10

type state int

const (
	notEntered state = iota
	entered
)

// Guard is a reentrancy lock: a second Enter while entered fails instead of
// blocking, and nested depth beyond MaxCallDepth fails. The zero value is
// ready to use.
type Guard struct {
	mu    sync.Mutex
	state state
	depth int
}

// NewGuard returns a guard in the not-entered state.
func NewGuard() *Guard {
	return &Guard{}
}

// Enter marks the guard entered. It returns ErrReentrancyAttack if already
// entered and ErrCallStackOverflow if the depth ceiling would be exceeded.
func (g *Guard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == entered {
		return domain.ErrReentrancyAttack
	}
	if g.depth >= MaxCallDepth {
		return domain.ErrCallStackOverflow
	}
	g.state = entered
	g.depth++
	return nil
}

// Exit releases the guard. On success the depth unwinds by one; on failure
// the guard resets to baseline so a failed operation can never leave the
// process wedged. Exiting a guard that was never entered reports
// ErrInvalidReentrancyState.
func (g *Guard) Exit(success bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != entered {
		return domain.ErrInvalidReentrancyState
	}
	g.state = notEntered
	if !success {
		g.depth = 0
		return nil
	}
	if g.depth <= 0 {
		g.depth = 0
		return domain.ErrInconsistentReentrancyState
	}
	g.depth--
	return nil
}

// Entered reports whether the guard is currently held.
func (g *Guard) Entered() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == entered
}

// Depth returns the current nested call depth.
func (g *Guard) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth
}

// Protect runs fn under the guard, exiting with fn's success status.
func (g *Guard) Protect(fn func() error) error {
	if err := g.Enter(); err != nil {
		return err
	}
	err := fn()
	if exitErr := g.Exit(err == nil); exitErr != nil && err == nil {
		return exitErr
	}
	return err
}

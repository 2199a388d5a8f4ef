package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"kodibridge/internal/catalog"
	"kodibridge/internal/logger"
)

// ErrNoActivePlayer is returned for player-scoped commands when the device
// reports no active player.
var ErrNoActivePlayer = errors.New("no active player")

// Timing carries the optional per-command timing directives.
type Timing struct {
	Repeat int           // number of issues, default 1
	Hold   time.Duration // press-and-hold duration
	Delay  time.Duration // minimum wait before the following step
}

// Step is one entry of a command sequence.
type Step struct {
	Command string
	Params  map[string]any
	Timing  Timing
}

// SequenceError reports the index of the step that aborted a sequence.
type SequenceError struct {
	Index int
	Err   error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence step %d: %v", e.Index, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }

// Dispatcher resolves commands through the catalog and drives the transport.
// One command or sequence runs at a time per device; a second invocation
// queues behind the first to preserve press-order semantics.
type Dispatcher struct {
	log *logger.Logger
	cat *catalog.Catalog
	sup *Supervisor

	mu sync.Mutex
}

func NewDispatcher(cat *catalog.Catalog, sup *Supervisor, log *logger.Logger) *Dispatcher {
	return &Dispatcher{log: log, cat: cat, sup: sup}
}

// Execute resolves and issues a single command. Catalog errors are reported
// before any transport interaction.
func (d *Dispatcher) Execute(ctx context.Context, command string, params map[string]any, t Timing) error {
	inv, err := d.cat.Resolve(command, params)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tr, err := d.sup.EnsureConnected(ctx)
	if err != nil {
		return err
	}
	return d.runStep(ctx, tr, inv, t)
}

// ExecuteSequence runs the steps strictly in order. The first failing step
// aborts the remainder; already executed steps are not retried.
func (d *Dispatcher) ExecuteSequence(ctx context.Context, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tr, err := d.sup.EnsureConnected(ctx)
	if err != nil {
		return &SequenceError{Index: 0, Err: err}
	}
	for i, step := range steps {
		inv, err := d.cat.Resolve(step.Command, step.Params)
		if err != nil {
			return &SequenceError{Index: i, Err: err}
		}
		if err := d.runStep(ctx, tr, inv, step.Timing); err != nil {
			return &SequenceError{Index: i, Err: err}
		}
	}
	return nil
}

// runStep issues one resolved invocation honoring repeat/hold/delay.
// Hold maps onto the holdtime parameter where the method supports it;
// otherwise the dispatcher issues the call and waits out the hold itself.
// Delay is a strict minimum before the following step, regardless of how
// fast the calls completed.
func (d *Dispatcher) runStep(ctx context.Context, tr Transport, inv catalog.Invocation, t Timing) error {
	repeat := t.Repeat
	if repeat < 1 {
		repeat = 1
	}

	params := inv.Params
	if inv.HoldCapable && t.Hold > 0 {
		params = make(map[string]any, len(inv.Params)+1)
		for k, v := range inv.Params {
			params[k] = v
		}
		params["holdtime"] = int(t.Hold / time.Millisecond)
	}

	for i := 0; i < repeat; i++ {
		bound := params
		if inv.NeedsPlayer {
			playerID, err := d.activePlayer(ctx, tr)
			if err != nil {
				return err
			}
			bound = catalog.BindPlayer(params, playerID)
		}
		d.log.Debugw("command_issue", "command", inv.Name, "method", inv.Method, "attempt", i+1, "of", repeat)
		if _, err := tr.Call(ctx, inv.Method, bound); err != nil {
			return err
		}
		if !inv.HoldCapable && t.Hold > 0 {
			if err := wait(ctx, t.Hold); err != nil {
				return err
			}
		}
	}

	if t.Delay > 0 {
		if err := wait(ctx, t.Delay); err != nil {
			return err
		}
	}
	return nil
}

// activePlayer queries the current active player identifier at send time.
func (d *Dispatcher) activePlayer(ctx context.Context, tr Transport) (int, error) {
	raw, err := tr.Call(ctx, "Player.GetActivePlayers", nil)
	if err != nil {
		return 0, err
	}
	var players []struct {
		PlayerID int `json:"playerid"`
	}
	if err := json.Unmarshal(raw, &players); err != nil {
		return 0, fmt.Errorf("parse active players: %w", err)
	}
	if len(players) == 0 {
		return 0, ErrNoActivePlayer
	}
	return players[0].PlayerID, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

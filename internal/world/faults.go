package world

import (
	"errors"
	"fmt"

	"tbtr/pkg/domain"
)

// Op names a state-changing operation for fault injection.
type Op string

// Operations that can be made to fail.
const (
	OpAny        Op = "any"
	OpMove       Op = "move"
	OpBuild      Op = "build"
	OpSell       Op = "sell"
	OpRefit      Op = "refit"
	OpCopy       Op = "copy"
	OpNeutralize Op = "neutralize"
)

// ErrInjected is the failure produced by InjectFailure.
var ErrInjected = errors.New("injected failure")

type fault struct {
	op        Op
	remaining int
}

// InjectFailure makes the executed (not dry-run) operation matching op fail after
// afterN successful ones. The fault fires once.
func (w *World) InjectFailure(op Op, afterN int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fault = &fault{op: op, remaining: afterN}
}

// ClearFailure removes a pending fault.
func (w *World) ClearFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fault = nil
}

func (w *World) checkFault(op Op, mode domain.CommandMode) error {
	if w.fault == nil || mode == domain.ModeDryRun {
		return nil
	}
	if w.fault.op != OpAny && w.fault.op != op {
		return nil
	}
	if w.fault.remaining > 0 {
		w.fault.remaining--
		return nil
	}
	w.fault = nil
	return fmt.Errorf("%s: %w", op, ErrInjected)
}

// Package undo keeps a bounded history of reversible completion edits
// and replays them against the service's transaction-undo call.
package undo

import (
	"context"
	"errors"
	"fmt"

	"rtmilk/rtm"
)

// DefaultCapacity bounds the history when the configuration does not.
const DefaultCapacity = 10

// ErrEmpty is returned when there is nothing left to undo.
var ErrEmpty = errors.New("nothing to undo")

// ErrModelInconsistency is returned when the local record of an edit no
// longer matches what the server holds, so replaying the undo would
// clobber a change made elsewhere. The entry is discarded and server
// state is left alone.
var ErrModelInconsistency = errors.New("task state changed since the edit was recorded")

// Entry records one undoable completion edit: which task, what its
// completion state was before the edit, and the server transaction that
// can reverse it.
type Entry struct {
	Ref            rtm.TaskRef
	PriorCompleted bool
	TransactionID  string
}

// Model is the slice of the local task model the stack validates
// against and repairs after a successful undo.
type Model interface {
	Get(ref rtm.TaskRef) (rtm.Task, bool)
	SetCompleted(ref rtm.TaskRef, completed bool) bool
}

// Undoer reverses a server-side transaction.
type Undoer interface {
	UndoTransaction(ctx context.Context, transactionID string) error
}

// Stack is a bounded LIFO of undoable edits. When full, recording a new
// edit silently drops the oldest one; its server transaction simply can
// no longer be reversed from here.
type Stack struct {
	capacity int
	entries  []Entry
}

// NewStack returns a stack bounded to capacity entries. Non-positive
// capacities fall back to DefaultCapacity.
func NewStack(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{capacity: capacity}
}

// Len reports how many edits can currently be undone.
func (s *Stack) Len() int { return len(s.entries) }

// Push records an edit, evicting the oldest entry when the stack is at
// capacity.
func (s *Stack) Push(e Entry) {
	if len(s.entries) == s.capacity {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, e)
}

// Invalidate drops every entry for ref. Used when reconciliation shows
// the server diverged from the state the entries were recorded against.
func (s *Stack) Invalidate(ref rtm.TaskRef) (dropped int) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Ref == ref {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return dropped
}

// PopAndUndo reverses the most recent edit. The entry is validated
// against the local model first: the task must still exist and still be
// in the state the edit left it in, otherwise ErrModelInconsistency is
// returned without touching the server. The entry comes off the stack
// in every case, success or failure; a failed compensating call may
// still have been applied server-side, so replaying it could reverse
// the task twice.
func (s *Stack) PopAndUndo(ctx context.Context, api Undoer, m Model) (Entry, error) {
	if len(s.entries) == 0 {
		return Entry{}, ErrEmpty
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]

	task, found := m.Get(e.Ref)
	if !found {
		return e, fmt.Errorf("task %s/%s no longer exists: %w", e.Ref.ListID, e.Ref.TaskID, ErrModelInconsistency)
	}
	if task.IsComplete() == e.PriorCompleted {
		// The edit has already been reversed, here or elsewhere.
		return e, fmt.Errorf("task %q: %w", task.Name, ErrModelInconsistency)
	}

	if err := api.UndoTransaction(ctx, e.TransactionID); err != nil {
		return e, err
	}

	m.SetCompleted(e.Ref, e.PriorCompleted)
	return e, nil
}

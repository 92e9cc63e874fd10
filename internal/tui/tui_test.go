package tui_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"rtmilk/internal/tui"
	"rtmilk/rtm"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
// Uses a minimal sleep since teatest messages are processed asynchronously.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

// sendRunesAndWait sends a rune key message and waits briefly for processing.
func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

// fakeAPI implements tui.API for testing. Completion calls can be
// gated on a channel so tests can observe state between the key press
// and the service response.
type fakeAPI struct {
	mu    sync.Mutex
	lists []rtm.List
	tasks map[string][]rtm.Task

	// When non-nil, CompleteTask/UncompleteTask block until a value
	// arrives; a non-nil value is returned as the call's error.
	completeGate chan error

	completeCalls int
	taskFilters   []string
	undoneTxns    []string
	undoErr       error
	nextTxn       int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		lists: []rtm.List{
			{ID: "l1", Name: "Inbox"},
			{ID: "l2", Name: "Work"},
		},
		tasks: map[string][]rtm.Task{
			"l1": {
				{ID: "t1", SeriesID: "s1", ListID: "l1", Name: "buy milk"},
				{ID: "t2", SeriesID: "s2", ListID: "l1", Name: "water plants"},
			},
			"l2": {
				{ID: "t3", SeriesID: "s3", ListID: "l2", Name: "file report"},
			},
		},
	}
}

func (f *fakeAPI) Lists(_ context.Context) ([]rtm.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rtm.List(nil), f.lists...), nil
}

func (f *fakeAPI) Tasks(_ context.Context, listID, filter string) ([]rtm.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskFilters = append(f.taskFilters, filter)
	return append([]rtm.Task(nil), f.tasks[listID]...), nil
}

func (f *fakeAPI) AddTask(_ context.Context, listID, text string) (*rtm.Task, *rtm.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task := rtm.Task{
		ID:       fmt.Sprintf("new-%d", len(f.tasks[listID])+1),
		SeriesID: fmt.Sprintf("news-%d", len(f.tasks[listID])+1),
		ListID:   listID,
		Name:     text,
	}
	f.tasks[listID] = append(f.tasks[listID], task)
	return &task, f.newTxn(), nil
}

func (f *fakeAPI) CompleteTask(_ context.Context, ref rtm.TaskRef) (*rtm.Transaction, error) {
	return f.setComplete(ref, true)
}

func (f *fakeAPI) UncompleteTask(_ context.Context, ref rtm.TaskRef) (*rtm.Transaction, error) {
	return f.setComplete(ref, false)
}

func (f *fakeAPI) setComplete(ref rtm.TaskRef, done bool) (*rtm.Transaction, error) {
	f.mu.Lock()
	gate := f.completeGate
	f.completeCalls++
	f.mu.Unlock()

	if gate != nil {
		if err := <-gate; err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i, task := range f.tasks[ref.ListID] {
		if task.ID == ref.TaskID {
			if done {
				f.tasks[ref.ListID][i].Completed = &now
			} else {
				f.tasks[ref.ListID][i].Completed = nil
			}
		}
	}
	return f.newTxn(), nil
}

func (f *fakeAPI) UndoTransaction(_ context.Context, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.undoErr != nil {
		return f.undoErr
	}
	f.undoneTxns = append(f.undoneTxns, transactionID)
	return nil
}

func (f *fakeAPI) newTxn() *rtm.Transaction {
	f.nextTxn++
	return &rtm.Transaction{ID: fmt.Sprintf("txn-%d", f.nextTxn), Undoable: true}
}

func (f *fakeAPI) completeCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeCalls
}

// readAll reads all output from a reader and returns as bytes
func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return out
}

// startTUI launches the model under teatest and waits for the list
// tree to appear.
func startTUI(t *testing.T, api tui.API) *teatest.TestModel {
	t.Helper()
	tm := teatest.NewTestModel(t, tui.New(api, "", 10), teatest.WithInitialTermSize(80, 24))
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("Inbox"))
	}, teatest.WithDuration(2*time.Second))
	return tm
}

// expandFirstList expands Inbox and waits for its tasks to load.
func expandFirstList(t *testing.T, tm *teatest.TestModel) {
	t.Helper()
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("buy milk"))
	}, teatest.WithDuration(2*time.Second))
}

// TestTUILaunch - the interface renders the list tree and quits cleanly
func TestTUILaunch(t *testing.T) {
	tm := startTUI(t, newFakeAPI())

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Inbox")) || !bytes.Contains(out, []byte("Work")) {
		t.Error("expected both lists to be visible")
	}
}

// TestTUIExpandListLoadsTasks - Enter on a list header fetches and shows its tasks
func TestTUIExpandListLoadsTasks(t *testing.T) {
	tm := startTUI(t, newFakeAPI())

	expandFirstList(t, tm)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("buy milk")) || !bytes.Contains(out, []byte("water plants")) {
		t.Error("expected tasks of the expanded list to be visible")
	}
}

// TestTUICollapseHidesTasks - Enter again folds the list back up
func TestTUICollapseHidesTasks(t *testing.T) {
	tm := startTUI(t, newFakeAPI())

	expandFirstList(t, tm)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	outStr := string(out)
	lastMilk := bytes.LastIndex(out, []byte("buy milk"))
	lastInbox := bytes.LastIndex(out, []byte("Inbox"))
	if lastMilk > lastInbox {
		t.Errorf("expected tasks hidden after collapse, final output:\n%s", outStr)
	}
}

// TestTUIOptimisticCompleteVisibleBeforeResponse - the checkmark
// appears while the service call is still in flight.
func TestTUIOptimisticCompleteVisibleBeforeResponse(t *testing.T) {
	api := newFakeAPI()
	api.completeGate = make(chan error, 1)

	tm := startTUI(t, api)
	expandFirstList(t, tm)

	// Move onto "buy milk" and toggle it.
	sendRunesAndWait(tm, []rune{'j'})
	sendRunesAndWait(tm, []rune{'c'})

	// The flip must render before the gated call returns.
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("[✓]"))
	}, teatest.WithDuration(2*time.Second))

	api.completeGate <- nil
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("[✓]")) {
		t.Error("expected completion to stick after the call succeeded")
	}
	if api.completeCallCount() != 1 {
		t.Errorf("expected 1 completion call, got %d", api.completeCallCount())
	}
}

// TestTUICompleteRollsBackOnFailure - a failed call restores the prior
// state and surfaces a notice instead of killing the session.
func TestTUICompleteRollsBackOnFailure(t *testing.T) {
	api := newFakeAPI()
	api.completeGate = make(chan error, 1)

	tm := startTUI(t, api)
	expandFirstList(t, tm)

	sendRunesAndWait(tm, []rune{'j'})
	sendRunesAndWait(tm, []rune{'c'})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("[✓]"))
	}, teatest.WithDuration(2*time.Second))

	api.completeGate <- &rtm.TransportError{
		Op:       "rtm.tasks.complete",
		Attempts: 4,
		Err:      fmt.Errorf("connection refused"),
	}

	// The rollback and the failure notice both render.
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("failed after 4 attempts"))
	}, teatest.WithDuration(2*time.Second))

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	lastDone := bytes.LastIndex(out, []byte("[✓]"))
	lastOpen := bytes.LastIndex(out, []byte("[ ]"))
	if lastOpen < lastDone {
		t.Error("expected the optimistic flip to be rolled back after the failure")
	}
}

// TestTUIRapidToggleEndsConsistent - pressing c twice leaves the task
// back in its original state.
func TestTUIRapidToggleEndsConsistent(t *testing.T) {
	api := newFakeAPI()

	tm := startTUI(t, api)
	expandFirstList(t, tm)

	sendRunesAndWait(tm, []rune{'j'})
	sendRunesAndWait(tm, []rune{'c'})
	sendRunesAndWait(tm, []rune{'c'})

	// Both calls resolve; the task ends incomplete.
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("buy milk"))
	}, teatest.WithDuration(2*time.Second))
	time.Sleep(100 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if api.completeCallCount() != 2 {
		t.Errorf("expected 2 completion calls, got %d", api.completeCallCount())
	}
	lastDone := bytes.LastIndex(out, []byte("[✓]"))
	lastOpen := bytes.LastIndex(out, []byte("[ ]"))
	if lastOpen < lastDone {
		t.Error("expected the task back in its original state after two toggles")
	}
}

// TestTUIUndoRevertsCompletion - u calls the service and restores the
// local checkbox.
func TestTUIUndoRevertsCompletion(t *testing.T) {
	api := newFakeAPI()

	tm := startTUI(t, api)
	expandFirstList(t, tm)

	sendRunesAndWait(tm, []rune{'j'})
	sendRunesAndWait(tm, []rune{'c'})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("undo:1"))
	}, teatest.WithDuration(2*time.Second))

	sendRunesAndWait(tm, []rune{'u'})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("undid completion"))
	}, teatest.WithDuration(2*time.Second))

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.undoneTxns) != 1 {
		t.Fatalf("expected 1 undo call, got %d", len(api.undoneTxns))
	}
}

// TestTUIUndoEmptyStack - u with nothing recorded just says so.
func TestTUIUndoEmptyStack(t *testing.T) {
	tm := startTUI(t, newFakeAPI())

	sendRunesAndWait(tm, []rune{'u'})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("nothing to undo"))
	}, teatest.WithDuration(2*time.Second))

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

// TestTUIAddTask - 'a' opens the input dialog and the created task
// appears under its list.
func TestTUIAddTask(t *testing.T) {
	api := newFakeAPI()

	tm := startTUI(t, api)
	expandFirstList(t, tm)

	sendRunesAndWait(tm, []rune{'a'})
	for _, r := range "call the dentist" {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("call the dentist"))
	}, teatest.WithDuration(2*time.Second))

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

// TestTUIFilterReloadsTasks - applying a filter refetches loaded lists
// under the new filter.
func TestTUIFilterReloadsTasks(t *testing.T) {
	api := newFakeAPI()

	tm := startTUI(t, api)
	expandFirstList(t, tm)

	sendRunesAndWait(tm, []rune{'/'})
	for _, r := range "status:incomplete" {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(100 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.taskFilters) < 2 {
		t.Fatalf("expected a refetch after the filter change, got %d fetches", len(api.taskFilters))
	}
	if got := api.taskFilters[len(api.taskFilters)-1]; got != "status:incomplete" {
		t.Errorf("last fetch used filter %q, want %q", got, "status:incomplete")
	}
}

// TestTUIHelp - '?' shows the key binding reference
func TestTUIHelp(t *testing.T) {
	tm := startTUI(t, newFakeAPI())

	sendRunesAndWait(tm, []rune{'?'})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("Key Bindings"))
	}, teatest.WithDuration(2*time.Second))

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEsc})
	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

// TestTUIQuit - 'q' exits the interface gracefully
func TestTUIQuit(t *testing.T) {
	tm := startTUI(t, newFakeAPI())

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

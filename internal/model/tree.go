// Package model holds the in-memory projection of lists and tasks that
// the interactive UI navigates and mutates. The tree is the single
// authority for local state: optimistic edits and server reconciliation
// both flow through it, and it is only ever touched from the UI's
// update loop.
package model

import (
	"time"

	"rtmilk/rtm"
)

// ListNode is one task list and its (possibly not yet loaded) tasks.
type ListNode struct {
	List     rtm.List
	Tasks    []*TaskNode
	Expanded bool
	Loaded   bool
	Loading  bool
}

// TaskNode wraps a task with its optimistic-edit bookkeeping. While
// pendingSeq is nonzero the local completion state is unconfirmed and
// pendingPrior remembers the last server-confirmed value for rollback.
type TaskNode struct {
	Task rtm.Task

	pendingSeq   uint64
	pendingPrior *time.Time
}

// Pending reports whether the node has an unconfirmed optimistic edit.
func (n *TaskNode) Pending() bool { return n.pendingSeq != 0 }

// RowKind distinguishes the two row types of the visible projection.
type RowKind int

const (
	RowList RowKind = iota
	RowTask
)

// Row is one visible line of the tree: a list header or a task under an
// expanded list. Purely a presentation projection, never state.
type Row struct {
	Kind RowKind
	List *ListNode
	Task *TaskNode
}

// Tree is the navigable model of all lists and tasks.
type Tree struct {
	lists  []*ListNode
	cursor int
	seq    uint64
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Lists returns the list nodes in display order.
func (t *Tree) Lists() []*ListNode { return t.lists }

// SetLists replaces the list metadata wholesale, preserving tasks and
// expansion state for lists that survive the refresh (matched by id).
func (t *Tree) SetLists(lists []rtm.List) {
	old := make(map[string]*ListNode, len(t.lists))
	for _, n := range t.lists {
		old[n.List.ID] = n
	}
	next := make([]*ListNode, 0, len(lists))
	for _, l := range lists {
		if prev, found := old[l.ID]; found {
			prev.List = l
			next = append(next, prev)
			continue
		}
		next = append(next, &ListNode{List: l})
	}
	t.lists = next
	t.clampCursor()
}

func (t *Tree) listNode(listID string) *ListNode {
	for _, n := range t.lists {
		if n.List.ID == listID {
			return n
		}
	}
	return nil
}

func (t *Tree) taskNode(ref rtm.TaskRef) *TaskNode {
	ln := t.listNode(ref.ListID)
	if ln == nil {
		return nil
	}
	for _, tn := range ln.Tasks {
		if tn.Task.ID == ref.TaskID && tn.Task.SeriesID == ref.SeriesID {
			return tn
		}
	}
	return nil
}

// Get returns the task for ref, if it exists in the model.
func (t *Tree) Get(ref rtm.TaskRef) (rtm.Task, bool) {
	tn := t.taskNode(ref)
	if tn == nil {
		return rtm.Task{}, false
	}
	return tn.Task, true
}

// ApplyLocalComplete flips the completion state of ref immediately,
// before any server confirmation. It returns the prior completion state
// (for undo recording) and the edit sequence identifying the API call
// this flip anticipates. A later local edit on the same task supersedes
// an earlier unconfirmed one; the rollback target stays the last
// server-confirmed state.
func (t *Tree) ApplyLocalComplete(ref rtm.TaskRef) (prior bool, seq uint64, ok bool) {
	tn := t.taskNode(ref)
	if tn == nil {
		return false, 0, false
	}
	prior = tn.Task.IsComplete()

	if tn.pendingSeq == 0 {
		tn.pendingPrior = tn.Task.Completed
	}
	t.seq++
	tn.pendingSeq = t.seq

	if prior {
		tn.Task.Completed = nil
	} else {
		now := time.Now()
		tn.Task.Completed = &now
	}
	return prior, tn.pendingSeq, true
}

// ResolveComplete applies the outcome of the API call identified by seq.
// Completions for superseded sequences are discarded. On failure the
// optimistic flip is rolled back to the last server-confirmed state.
// Returns false when the outcome was stale or the task is gone.
func (t *Tree) ResolveComplete(ref rtm.TaskRef, seq uint64, confirmed bool) bool {
	tn := t.taskNode(ref)
	if tn == nil {
		return false
	}
	if tn.pendingSeq != seq {
		// A newer local edit superseded this call; only the most
		// recent outcome is trusted.
		return false
	}
	if !confirmed {
		tn.Task.Completed = tn.pendingPrior
	}
	tn.pendingSeq = 0
	tn.pendingPrior = nil
	return true
}

// SetCompleted forces the completion state of ref, used after a
// successful compensating call reverted the change server-side.
func (t *Tree) SetCompleted(ref rtm.TaskRef, completed bool) bool {
	tn := t.taskNode(ref)
	if tn == nil {
		return false
	}
	if completed {
		if tn.Task.Completed == nil {
			now := time.Now()
			tn.Task.Completed = &now
		}
	} else {
		tn.Task.Completed = nil
	}
	tn.pendingSeq = 0
	tn.pendingPrior = nil
	return true
}

// AdoptTask inserts the server's authoritative record of a newly created
// task into its list. The server-assigned identifiers are taken
// verbatim. A list that was never fetched stays unloaded; its first
// expansion still pulls the full set, this task included.
func (t *Tree) AdoptTask(task rtm.Task) {
	ln := t.listNode(task.ListID)
	if ln == nil {
		return
	}
	ln.Tasks = append(ln.Tasks, &TaskNode{Task: task})
}

// Reconcile replaces the task set of a list with the server's view. The
// server wins: any task under a pending optimistic edit that is absent
// from, or contradicted by, the server view has its pending edit
// dropped, and its ref is returned so the caller can invalidate undo
// entries referencing it.
func (t *Tree) Reconcile(listID string, tasks []rtm.Task) (invalidated []rtm.TaskRef) {
	ln := t.listNode(listID)
	if ln == nil {
		return nil
	}

	incoming := make(map[rtm.TaskRef]rtm.Task, len(tasks))
	for _, task := range tasks {
		incoming[task.Ref()] = task
	}

	for _, tn := range ln.Tasks {
		if tn.pendingSeq == 0 {
			continue
		}
		server, present := incoming[tn.Task.Ref()]
		if !present || server.IsComplete() != tn.Task.IsComplete() {
			invalidated = append(invalidated, tn.Task.Ref())
		}
	}

	next := make([]*TaskNode, 0, len(tasks))
	for _, task := range tasks {
		next = append(next, &TaskNode{Task: task})
	}
	ln.Tasks = next
	ln.Loaded = true
	ln.Loading = false
	t.clampCursor()
	return invalidated
}

// ----------------------------------------------------------------------
// Navigation. Pure projection over the tree; never touches the network
// and never fails.
// ----------------------------------------------------------------------

// VisibleRows returns the rows currently presentable: every list, and
// the tasks of expanded lists.
func (t *Tree) VisibleRows() []Row {
	var rows []Row
	for _, ln := range t.lists {
		rows = append(rows, Row{Kind: RowList, List: ln})
		if !ln.Expanded {
			continue
		}
		for _, tn := range ln.Tasks {
			rows = append(rows, Row{Kind: RowTask, List: ln, Task: tn})
		}
	}
	return rows
}

// Cursor returns the index of the selected visible row.
func (t *Tree) Cursor() int { return t.cursor }

// Selected returns the currently selected row.
func (t *Tree) Selected() (Row, bool) {
	rows := t.VisibleRows()
	if t.cursor < 0 || t.cursor >= len(rows) {
		return Row{}, false
	}
	return rows[t.cursor], true
}

// MoveUp moves the selection up one visible row.
func (t *Tree) MoveUp() {
	if t.cursor > 0 {
		t.cursor--
	}
}

// MoveDown moves the selection down one visible row.
func (t *Tree) MoveDown() {
	if t.cursor < len(t.VisibleRows())-1 {
		t.cursor++
	}
}

// ToggleSelected expands or collapses the selected list. Selecting a
// task toggles its parent list closed. Returns the list that changed
// state, with its new expansion, or nil for an empty tree.
func (t *Tree) ToggleSelected() *ListNode {
	row, ok := t.Selected()
	if !ok {
		return nil
	}
	ln := row.List
	ln.Expanded = !ln.Expanded
	if row.Kind == RowTask {
		// Collapsing from inside the list: reselect the header.
		t.selectList(ln)
	}
	t.clampCursor()
	return ln
}

// Expand opens a specific list.
func (t *Tree) Expand(listID string) {
	if ln := t.listNode(listID); ln != nil {
		ln.Expanded = true
	}
}

// Collapse closes a specific list.
func (t *Tree) Collapse(listID string) {
	if ln := t.listNode(listID); ln != nil {
		ln.Expanded = false
		t.clampCursor()
	}
}

func (t *Tree) selectList(ln *ListNode) {
	for i, row := range t.VisibleRows() {
		if row.Kind == RowList && row.List == ln {
			t.cursor = i
			return
		}
	}
}

func (t *Tree) clampCursor() {
	n := len(t.VisibleRows())
	if n == 0 {
		t.cursor = 0
		return
	}
	if t.cursor >= n {
		t.cursor = n - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
}

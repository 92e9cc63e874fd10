package model

import (
	"testing"
	"time"

	"rtmilk/rtm"
)

func newTask(listID, seriesID, taskID, name string, completed bool) rtm.Task {
	t := rtm.Task{ID: taskID, SeriesID: seriesID, ListID: listID, Name: name}
	if completed {
		now := time.Now()
		t.Completed = &now
	}
	return t
}

func newTestTree() *Tree {
	tr := New()
	tr.SetLists([]rtm.List{{ID: "l1", Name: "Inbox"}, {ID: "l2", Name: "Work"}})
	tr.Reconcile("l1", []rtm.Task{
		newTask("l1", "s1", "t1", "buy milk", false),
		newTask("l1", "s2", "t2", "water plants", false),
	})
	tr.Reconcile("l2", []rtm.Task{
		newTask("l2", "s3", "t3", "file report", true),
	})
	return tr
}

func ref(listID, seriesID, taskID string) rtm.TaskRef {
	return rtm.TaskRef{ListID: listID, SeriesID: seriesID, TaskID: taskID}
}

func TestSetListsPreservesSurvivors(t *testing.T) {
	tr := newTestTree()
	tr.Expand("l1")

	tr.SetLists([]rtm.List{{ID: "l1", Name: "Inbox (renamed)"}, {ID: "l3", Name: "Errands"}})

	lists := tr.Lists()
	if len(lists) != 2 {
		t.Fatalf("len(lists) = %d, want 2", len(lists))
	}
	if lists[0].List.Name != "Inbox (renamed)" {
		t.Errorf("surviving list not renamed: %q", lists[0].List.Name)
	}
	if !lists[0].Expanded || !lists[0].Loaded || len(lists[0].Tasks) != 2 {
		t.Error("surviving list should keep expansion and tasks")
	}
	if lists[1].Loaded || len(lists[1].Tasks) != 0 {
		t.Error("new list should start unloaded")
	}
}

func TestApplyLocalCompleteFlipsImmediately(t *testing.T) {
	tr := newTestTree()
	r := ref("l1", "s1", "t1")

	prior, seq, ok := tr.ApplyLocalComplete(r)
	if !ok {
		t.Fatal("ApplyLocalComplete failed on existing task")
	}
	if prior {
		t.Error("prior state should be incomplete")
	}
	if seq == 0 {
		t.Error("edit sequence must be nonzero")
	}
	task, _ := tr.Get(r)
	if !task.IsComplete() {
		t.Error("flip must be visible before any confirmation")
	}

	// Flipping an already-complete task works the other way round.
	prior2, seq2, _ := tr.ApplyLocalComplete(ref("l2", "s3", "t3"))
	if !prior2 {
		t.Error("prior state should be complete")
	}
	if seq2 <= seq {
		t.Errorf("sequences must be monotonic: %d then %d", seq, seq2)
	}
	task, _ = tr.Get(ref("l2", "s3", "t3"))
	if task.IsComplete() {
		t.Error("flip of a complete task should uncomplete it")
	}
}

func TestApplyLocalCompleteMissingTask(t *testing.T) {
	tr := newTestTree()
	if _, _, ok := tr.ApplyLocalComplete(ref("l1", "s9", "t9")); ok {
		t.Error("ApplyLocalComplete on a missing task should report !ok")
	}
}

func TestResolveCompleteFailureRollsBack(t *testing.T) {
	tr := newTestTree()
	r := ref("l1", "s1", "t1")

	_, seq, _ := tr.ApplyLocalComplete(r)
	if !tr.ResolveComplete(r, seq, false) {
		t.Fatal("resolve should apply")
	}
	task, _ := tr.Get(r)
	if task.IsComplete() {
		t.Error("failed call must roll the flip back")
	}
	if node := tr.Lists()[0].Tasks[0]; node.Pending() {
		t.Error("pending flag should clear after resolution")
	}
}

func TestResolveCompleteSuccessKeepsState(t *testing.T) {
	tr := newTestTree()
	r := ref("l1", "s1", "t1")

	_, seq, _ := tr.ApplyLocalComplete(r)
	if !tr.ResolveComplete(r, seq, true) {
		t.Fatal("resolve should apply")
	}
	task, _ := tr.Get(r)
	if !task.IsComplete() {
		t.Error("confirmed flip must stick")
	}
}

// Two rapid flips on one task: only the second call's outcome counts,
// and a failure there rolls back to the state the server last
// confirmed, not to the intermediate local one.
func TestRapidTogglesTrustOnlyLatestOutcome(t *testing.T) {
	tr := newTestTree()
	r := ref("l1", "s1", "t1")

	_, seq1, _ := tr.ApplyLocalComplete(r) // incomplete -> complete
	_, seq2, _ := tr.ApplyLocalComplete(r) // complete -> incomplete

	// The first call's outcome arrives after being superseded: ignored.
	if tr.ResolveComplete(r, seq1, true) {
		t.Error("stale outcome must be discarded")
	}
	task, _ := tr.Get(r)
	if task.IsComplete() {
		t.Error("stale outcome must not disturb the newer local state")
	}

	// The second call fails: roll back to the original server state.
	if !tr.ResolveComplete(r, seq2, false) {
		t.Fatal("latest outcome should apply")
	}
	task, _ = tr.Get(r)
	if task.IsComplete() {
		t.Error("rollback target is the last server-confirmed state (incomplete)")
	}
}

func TestReconcileServerWins(t *testing.T) {
	tr := newTestTree()
	pending := ref("l1", "s1", "t1")
	agreeing := ref("l1", "s2", "t2")

	tr.ApplyLocalComplete(pending)  // local: complete
	tr.ApplyLocalComplete(agreeing) // local: complete

	// Server view: t1 still incomplete (contradicts), t2 complete
	// (agrees), and a task we never saw.
	invalidated := tr.Reconcile("l1", []rtm.Task{
		newTask("l1", "s1", "t1", "buy milk", false),
		newTask("l1", "s2", "t2", "water plants", true),
		newTask("l1", "s4", "t4", "new on server", false),
	})

	if len(invalidated) != 1 || invalidated[0] != pending {
		t.Fatalf("invalidated = %v, want just %v", invalidated, pending)
	}
	task, _ := tr.Get(pending)
	if task.IsComplete() {
		t.Error("server state must replace the contradicted optimistic flip")
	}
	if _, ok := tr.Get(ref("l1", "s4", "t4")); !ok {
		t.Error("reconcile should adopt server-side additions")
	}
}

func TestReconcileInvalidatesVanishedPendingTask(t *testing.T) {
	tr := newTestTree()
	gone := ref("l1", "s1", "t1")
	tr.ApplyLocalComplete(gone)

	invalidated := tr.Reconcile("l1", []rtm.Task{
		newTask("l1", "s2", "t2", "water plants", false),
	})
	if len(invalidated) != 1 || invalidated[0] != gone {
		t.Fatalf("invalidated = %v, want just %v", invalidated, gone)
	}
	if _, ok := tr.Get(gone); ok {
		t.Error("vanished task must not survive reconcile")
	}
}

func TestAdoptTask(t *testing.T) {
	tr := newTestTree()
	tr.AdoptTask(newTask("l1", "s9", "t9", "from server", false))
	if _, ok := tr.Get(ref("l1", "s9", "t9")); !ok {
		t.Error("adopted task should be addressable")
	}
	// Unknown list: dropped silently.
	tr.AdoptTask(newTask("l9", "s9", "t9", "orphan", false))
}

// Adopting into a list that was never fetched must not mark it loaded,
// or its first expansion would skip the fetch and show only this task.
func TestAdoptTaskIntoUnfetchedList(t *testing.T) {
	tr := New()
	tr.SetLists([]rtm.List{{ID: "l1", Name: "Inbox"}})

	tr.AdoptTask(newTask("l1", "s1", "t1", "buy milk", false))

	if _, ok := tr.Get(ref("l1", "s1", "t1")); !ok {
		t.Error("adopted task should be addressable")
	}
	if tr.Lists()[0].Loaded {
		t.Error("never-fetched list must stay unloaded so expansion fetches it")
	}

	// The fetch then lands and the server view wins.
	tr.Reconcile("l1", []rtm.Task{
		newTask("l1", "s1", "t1", "buy milk", false),
		newTask("l1", "s2", "t2", "water plants", false),
	})
	if !tr.Lists()[0].Loaded || len(tr.Lists()[0].Tasks) != 2 {
		t.Errorf("after reconcile: loaded=%v tasks=%d, want loaded with 2 tasks",
			tr.Lists()[0].Loaded, len(tr.Lists()[0].Tasks))
	}
}

func TestNavigationOverExpandedLists(t *testing.T) {
	tr := newTestTree()

	rows := tr.VisibleRows()
	if len(rows) != 2 {
		t.Fatalf("collapsed tree rows = %d, want 2", len(rows))
	}

	tr.Expand("l1")
	rows = tr.VisibleRows()
	if len(rows) != 4 {
		t.Fatalf("rows after expand = %d, want 4", len(rows))
	}
	if rows[1].Kind != RowTask || rows[1].Task.Task.Name != "buy milk" {
		t.Errorf("row 1 = %+v, want first task of l1", rows[1])
	}

	tr.MoveDown()
	tr.MoveDown()
	sel, _ := tr.Selected()
	if sel.Kind != RowTask || sel.Task.Task.Name != "water plants" {
		t.Errorf("selection = %+v", sel)
	}

	// Down past the end stays put.
	tr.MoveDown()
	tr.MoveDown()
	tr.MoveDown()
	if tr.Cursor() != 3 {
		t.Errorf("cursor = %d, want clamped to 3", tr.Cursor())
	}
	tr.MoveUp()
	tr.MoveUp()
	tr.MoveUp()
	tr.MoveUp()
	if tr.Cursor() != 0 {
		t.Errorf("cursor = %d, want clamped to 0", tr.Cursor())
	}
}

func TestToggleSelectedFromTaskRowReselectsHeader(t *testing.T) {
	tr := newTestTree()
	tr.Expand("l1")
	tr.MoveDown() // onto first task of l1

	ln := tr.ToggleSelected()
	if ln == nil || ln.Expanded {
		t.Fatal("toggle from a task row should collapse its list")
	}
	sel, _ := tr.Selected()
	if sel.Kind != RowList || sel.List.List.ID != "l1" {
		t.Errorf("selection after collapse = %+v, want l1 header", sel)
	}
}

func TestCursorClampedAfterReconcileShrink(t *testing.T) {
	tr := newTestTree()
	tr.Expand("l1")
	tr.MoveDown()
	tr.MoveDown() // last task of l1

	tr.Reconcile("l1", nil) // list emptied server-side
	if _, ok := tr.Selected(); !ok {
		t.Error("selection must remain valid after the tree shrinks")
	}
}

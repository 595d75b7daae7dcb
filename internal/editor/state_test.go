package editor

import (
	"errors"
	"testing"

	"callflow-platform/internal/callflow"
)

func editing(t *testing.T) State {
	t.Helper()
	s, err := New(Idle(), "o1", "Main", "+1555")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func mustAdd(t *testing.T, s State, b callflow.Block) (State, callflow.Block) {
	t.Helper()
	out, added, err := AddBlock(s, b)
	if err != nil {
		t.Fatalf("add %q: %v", b.ID, err)
	}
	return out, added
}

func TestTransitionsRequireEditing(t *testing.T) {
	if _, _, err := AddBlock(Idle(), callflow.Block{Type: callflow.BlockSay}); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing, got %v", err)
	}
	s := editing(t)
	s.Status = StatusSaving
	if _, err := SetName(s, "x"); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("expected ErrSaveInFlight, got %v", err)
	}
}

func TestAddBlock_GeneratesIDAndLaysOutGrid(t *testing.T) {
	s := editing(t)
	var added []callflow.Block
	for i := 0; i < 5; i++ {
		var b callflow.Block
		s, b = mustAdd(t, s, callflow.Block{Type: callflow.BlockSay, Config: callflow.Config{Text: "x"}})
		added = append(added, b)
	}
	if added[0].ID == "" || added[0].ID == added[1].ID {
		t.Fatalf("expected unique generated ids")
	}
	want := []callflow.Position{{X: 100, Y: 100}, {X: 350, Y: 100}, {X: 600, Y: 100}, {X: 850, Y: 100}, {X: 100, Y: 250}}
	for i, b := range added {
		if b.Position != want[i] {
			t.Fatalf("block %d at %+v, want %+v", i, b.Position, want[i])
		}
	}
	if !s.Dirty {
		t.Fatalf("expected dirty draft")
	}
}

func TestAddBlock_SkipsCellsNearExistingBlocks(t *testing.T) {
	s := editing(t)
	s, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockHangup, Position: callflow.Position{X: 120, Y: 130}})
	_, b := mustAdd(t, s, callflow.Block{ID: "b", Type: callflow.BlockHangup})
	if b.Position != (callflow.Position{X: 350, Y: 100}) {
		t.Fatalf("expected second cell, got %+v", b.Position)
	}
}

func TestAddBlock_RejectsDuplicateAndUnknown(t *testing.T) {
	s := editing(t)
	s, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockHangup})
	if _, _, err := AddBlock(s, callflow.Block{ID: "a", Type: callflow.BlockHangup}); !errors.Is(err, ErrDuplicateBlock) {
		t.Fatalf("expected ErrDuplicateBlock, got %v", err)
	}
	if _, _, err := AddBlock(s, callflow.Block{ID: "b", Type: "teleport"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, _, err := AddBlock(s, callflow.Block{ID: "c", Type: callflow.BlockSay, Next: []string{"nope"}}); !errors.Is(err, ErrDanglingEdge) {
		t.Fatalf("expected ErrDanglingEdge, got %v", err)
	}
}

func TestAddBlock_WhileConnectingAddsEdgeAtomically(t *testing.T) {
	s := editing(t)
	s, src := mustAdd(t, s, callflow.Block{ID: "src", Type: callflow.BlockSay, Config: callflow.Config{Text: "hi"}})
	s, err := StartConnecting(s, "src")
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	s, b := mustAdd(t, s, callflow.Block{ID: "dst", Type: callflow.BlockHangup})

	if s.ConnectingFrom != "" {
		t.Fatalf("pending connection should be cleared")
	}
	got, _ := s.Draft.Block("src")
	if len(got.Next) != 1 || got.Next[0] != "dst" {
		t.Fatalf("expected src -> dst, got %v", got.Next)
	}
	if b.Position.X != src.Position.X || b.Position.Y != src.Position.Y+CellHeight {
		t.Fatalf("expected block below its source, got %+v", b.Position)
	}
}

func TestAddBlock_DoesNotMutateInput(t *testing.T) {
	s := editing(t)
	before := len(s.Draft.Blocks)
	_, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockHangup})
	if len(s.Draft.Blocks) != before {
		t.Fatalf("previous state changed")
	}
}

func TestUpdateBlock_MergesConfigAndSelectionFollows(t *testing.T) {
	s := editing(t)
	s, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockSay, Config: callflow.Config{Text: "hi", Voice: "alice"}})
	s, _ = Select(s, "a")

	s, err := UpdateBlock(s, "a", Patch{Config: map[string]any{"text": "hello", "voice": nil}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	sel, ok := s.Selected()
	if !ok || sel.Config.Text != "hello" || sel.Config.Voice != "" {
		t.Fatalf("selection does not reflect merge: %+v", sel.Config)
	}

	if _, err := UpdateBlock(s, "a", Patch{Config: map[string]any{"duration": "long"}}); !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("expected ErrInvalidPatch, got %v", err)
	}
	next := []string{"missing"}
	if _, err := UpdateBlock(s, "a", Patch{Next: &next}); !errors.Is(err, ErrDanglingEdge) {
		t.Fatalf("expected ErrDanglingEdge, got %v", err)
	}
	if _, err := UpdateBlock(s, "zz", Patch{}); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestConnectBlocks_NoDuplicateEdges(t *testing.T) {
	s := editing(t)
	s, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockSay, Config: callflow.Config{Text: "x"}})
	s, _ = mustAdd(t, s, callflow.Block{ID: "b", Type: callflow.BlockHangup})

	s, err := ConnectBlocks(s, "a", "b")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s, err = ConnectBlocks(s, "a", "b")
	if err != nil {
		t.Fatalf("connect again: %v", err)
	}
	a, _ := s.Draft.Block("a")
	if len(a.Next) != 1 {
		t.Fatalf("expected a single edge, got %v", a.Next)
	}
}

func TestConnectBlocks_BindsFirstFreeMenuOption(t *testing.T) {
	s := editing(t)
	s, _ = mustAdd(t, s, callflow.Block{ID: "m", Type: callflow.BlockMenu, Config: callflow.Config{
		Prompt:  "Press",
		Options: []callflow.MenuOption{{Digit: "1"}, {Digit: "2"}},
	}})
	s, _ = mustAdd(t, s, callflow.Block{ID: "x", Type: callflow.BlockHangup})
	s, _ = mustAdd(t, s, callflow.Block{ID: "y", Type: callflow.BlockHangup})

	s, _ = ConnectBlocks(s, "m", "x")
	s, _ = ConnectBlocks(s, "m", "y")
	m, _ := s.Draft.Block("m")
	if m.Config.Options[0].Target != "x" || m.Config.Options[1].Target != "y" {
		t.Fatalf("unexpected option targets: %+v", m.Config.Options)
	}

	s, _ = DisconnectBlocks(s, "m", "x")
	m, _ = s.Draft.Block("m")
	if m.HasEdge("x") || m.Config.Options[0].Target != "" {
		t.Fatalf("disconnect left references: %+v", m)
	}
	// Disconnecting a missing edge is a no-op.
	if _, err := DisconnectBlocks(s, "m", "x"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestDeleteBlock_StripsReferencesAndKeepsGraphValid(t *testing.T) {
	s := editing(t)
	s, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockSay, Config: callflow.Config{Text: "x"}})
	s, _ = mustAdd(t, s, callflow.Block{ID: "m", Type: callflow.BlockMenu, Config: callflow.Config{
		Prompt:  "Press",
		Options: []callflow.MenuOption{{Digit: "1"}},
	}})
	s, _ = mustAdd(t, s, callflow.Block{ID: "b", Type: callflow.BlockHangup})
	s, _ = ConnectBlocks(s, "a", "m")
	s, _ = ConnectBlocks(s, "m", "b")
	s, _ = SetEntryBlock(s, "a")
	s, _ = Select(s, "b")
	s, _ = StartConnecting(s, "b")

	if _, err := callflow.ValidateFlow(*s.Draft); err != nil {
		t.Fatalf("precondition: %v", err)
	}

	s, err := DeleteBlock(s, "b")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, blk := range s.Draft.Blocks {
		for _, to := range callflow.Edges(blk) {
			if to == "b" {
				t.Fatalf("block %q still points at deleted block", blk.ID)
			}
		}
	}
	if s.SelectedID != "" || s.ConnectingFrom != "" {
		t.Fatalf("selection and pending connection should be cleared")
	}
	if _, err := callflow.ValidateFlow(*s.Draft); err != nil {
		t.Fatalf("graph invalid after delete: %v", err)
	}

	s, _ = DeleteBlock(s, "a")
	if s.Draft.EntryBlockID != "" {
		t.Fatalf("entry should be cleared with its block")
	}
}

func TestReset_DiscardsDraftKeepsList(t *testing.T) {
	s := editing(t)
	s.Flows = []callflow.CallFlow{{ID: "f1", PhoneNumber: "+1"}}
	s, _ = mustAdd(t, s, callflow.Block{Type: callflow.BlockHangup})

	r := Reset(s)
	if r.Status != StatusIdle || r.Draft != nil || r.Dirty {
		t.Fatalf("unexpected reset state: %+v", r)
	}
	if len(r.Flows) != 1 {
		t.Fatalf("flow list should be kept")
	}
}

func TestCheckSave(t *testing.T) {
	s := editing(t)
	if err := CheckSave(s); !errors.Is(err, ErrNoBlocks) {
		t.Fatalf("expected ErrNoBlocks, got %v", err)
	}
	s, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockHangup})

	noName, _ := SetName(s, " ")
	if err := CheckSave(noName); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	noNumber, _ := SetPhoneNumber(s, "")
	if err := CheckSave(noNumber); !errors.Is(err, ErrNumberRequired) {
		t.Fatalf("expected ErrNumberRequired, got %v", err)
	}

	claimed := s.clone()
	claimed.Flows = []callflow.CallFlow{{ID: "other", Name: "Other", PhoneNumber: "+1555"}}
	if err := CheckSave(claimed); !errors.Is(err, ErrNumberClaimed) {
		t.Fatalf("expected ErrNumberClaimed, got %v", err)
	}

	if err := CheckSave(s); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}
}

func TestSaveTransitions(t *testing.T) {
	s := editing(t)
	s, _ = mustAdd(t, s, callflow.Block{ID: "a", Type: callflow.BlockHangup})
	s, _ = Select(s, "a")

	saving, err := BeginSave(s)
	if err != nil || saving.Status != StatusSaving {
		t.Fatalf("begin: %v %q", err, saving.Status)
	}

	failed := SaveFailed(saving, errors.New("boom"))
	if failed.Status != StatusEditing || failed.LastError != "boom" || len(failed.Draft.Blocks) != 1 || !failed.Dirty {
		t.Fatalf("failed save lost edits: %+v", failed)
	}

	stored := saving.Draft.Clone()
	stored.ID = "flow-1"
	ok := SaveSucceeded(saving, stored, []callflow.CallFlow{stored})
	if ok.Status != StatusEditing || ok.Dirty || ok.Draft.ID != "flow-1" || len(ok.Flows) != 1 {
		t.Fatalf("unexpected success state: %+v", ok)
	}
	if ok.SelectedID != "a" {
		t.Fatalf("selection of surviving block should be kept")
	}
}

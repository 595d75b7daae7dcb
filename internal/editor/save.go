package editor

import (
	"errors"
	"fmt"
	"strings"

	"callflow-platform/internal/callflow"
)

var (
	ErrNameRequired   = errors.New("editor: flow name is required")
	ErrNumberRequired = errors.New("editor: select a phone number")
	ErrNoBlocks       = errors.New("editor: add at least one block")
	ErrNumberClaimed  = errors.New("editor: another flow already uses this phone number")
	ErrNumberNotOwned = errors.New("editor: phone number is not owned by this account")
)

// CheckSave runs the checks that need no storage round trip.
func CheckSave(s State) error {
	if s.Status == StatusSaving {
		return ErrSaveInFlight
	}
	if s.Status != StatusEditing || s.Draft == nil {
		return ErrNotEditing
	}
	d := s.Draft
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(d.PhoneNumber) == "" {
		return ErrNumberRequired
	}
	if len(d.Blocks) == 0 {
		return ErrNoBlocks
	}
	for _, f := range s.Flows {
		if f.PhoneNumber == d.PhoneNumber && f.ID != d.ID {
			return fmt.Errorf("%w: %s (%s)", ErrNumberClaimed, d.PhoneNumber, f.Name)
		}
	}
	if _, err := callflow.ValidateFlow(*d); err != nil {
		return err
	}
	return nil
}

// BeginSave moves an editable state to saving.
func BeginSave(s State) (State, error) {
	if err := CheckSave(s); err != nil {
		return s, err
	}
	out := s.clone()
	out.Status = StatusSaving
	out.LastError = ""
	return out, nil
}

// SaveSucceeded replaces the draft with the stored record and refreshes the
// owner's list. Selection survives when the block still exists.
func SaveSucceeded(s State, saved callflow.CallFlow, flows []callflow.CallFlow) State {
	out := s.clone()
	d := saved.Clone()
	out.Status = StatusEditing
	out.Draft = &d
	out.Dirty = false
	out.LastError = ""
	out.Flows = make([]callflow.CallFlow, 0, len(flows))
	for _, f := range flows {
		out.Flows = append(out.Flows, f.Clone())
	}
	if _, ok := d.Block(out.SelectedID); !ok {
		out.SelectedID = ""
	}
	if _, ok := d.Block(out.ConnectingFrom); !ok {
		out.ConnectingFrom = ""
	}
	return out
}

// SaveFailed goes back to editing with every edit intact.
func SaveFailed(s State, err error) State {
	out := s.clone()
	out.Status = StatusEditing
	if err != nil {
		out.LastError = err.Error()
	}
	return out
}

// Package editor holds the authority for a flow being edited. Every
// transition is a pure function from one State value to the next; the
// Service persists states between requests and talks to storage on save.
package editor

import (
	"errors"
	"fmt"
	"strings"

	"callflow-platform/internal/callflow"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusEditing Status = "editing"
	StatusSaving  Status = "saving"
)

var (
	ErrNotEditing     = errors.New("editor: no flow is being edited")
	ErrSaveInFlight   = errors.New("editor: a save is in progress")
	ErrBlockNotFound  = errors.New("editor: block not found")
	ErrDuplicateBlock = errors.New("editor: block id already exists")
	ErrUnknownType    = errors.New("editor: unknown block type")
	ErrDanglingEdge   = errors.New("editor: edge to a block that does not exist")
	ErrInvalidPatch   = errors.New("editor: invalid block patch")
)

// State is a snapshot of one edit session.
type State struct {
	Status Status `json:"status"`

	// Draft is the flow under edit. Nil while idle.
	Draft *callflow.CallFlow `json:"draft,omitempty"`

	SelectedID     string `json:"selected_id,omitempty"`
	ConnectingFrom string `json:"connecting_from,omitempty"`
	Dirty          bool   `json:"dirty"`

	// Flows is the owner's flow list as of the last load or save.
	Flows []callflow.CallFlow `json:"flows"`

	LastError string `json:"last_error,omitempty"`
}

// Idle returns the initial state.
func Idle() State { return State{Status: StatusIdle, Flows: []callflow.CallFlow{}} }

// Selected returns the selected block as it currently is in the draft.
// Selection is an id, so it always reflects the latest edits.
func (s State) Selected() (callflow.Block, bool) {
	if s.Draft == nil || s.SelectedID == "" {
		return callflow.Block{}, false
	}
	return s.Draft.Block(s.SelectedID)
}

// clone deep-copies everything a transition may touch.
func (s State) clone() State {
	out := s
	if s.Draft != nil {
		d := s.Draft.Clone()
		out.Draft = &d
	}
	out.Flows = make([]callflow.CallFlow, len(s.Flows))
	for i, f := range s.Flows {
		out.Flows[i] = f.Clone()
	}
	return out
}

// editable returns a copy of s ready for a draft mutation.
func (s State) editable() (State, error) {
	switch s.Status {
	case StatusSaving:
		return s, ErrSaveInFlight
	case StatusEditing:
	default:
		return s, ErrNotEditing
	}
	if s.Draft == nil {
		return s, ErrNotEditing
	}
	return s.clone(), nil
}

func (s *State) blockIndex(id string) int {
	for i, b := range s.Draft.Blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Open starts editing an existing flow. Unsaved edits of a previous draft are
// discarded.
func Open(s State, f callflow.CallFlow) (State, error) {
	if s.Status == StatusSaving {
		return s, ErrSaveInFlight
	}
	out := s.clone()
	d := f.Clone()
	if d.Blocks == nil {
		d.Blocks = []callflow.Block{}
	}
	out.Status = StatusEditing
	out.Draft = &d
	out.SelectedID = ""
	out.ConnectingFrom = ""
	out.Dirty = false
	out.LastError = ""
	return out, nil
}

// New starts editing an empty flow.
func New(s State, ownerID, name, phoneNumber string) (State, error) {
	out, err := Open(s, callflow.CallFlow{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(name),
		PhoneNumber: strings.TrimSpace(phoneNumber),
		Blocks:      []callflow.Block{},
	})
	return out, err
}

// Reset returns to idle and discards the draft. The owner's flow list is
// kept.
func Reset(s State) State {
	out := Idle()
	for _, f := range s.Flows {
		out.Flows = append(out.Flows, f.Clone())
	}
	return out
}

// AddBlock appends b to the draft and returns the stored block.
//
// An empty id is generated. While a connection is pending, the edge from the
// pending source is added in the same step, the pending state is cleared and
// the block is placed below its source. Otherwise a block without a position
// gets the first free grid cell.
func AddBlock(s State, b callflow.Block) (State, callflow.Block, error) {
	out, err := s.editable()
	if err != nil {
		return s, callflow.Block{}, err
	}

	b = b.Clone()
	if strings.TrimSpace(b.ID) == "" {
		b.ID = callflow.NewBlockID()
	}
	if out.blockIndex(b.ID) >= 0 {
		return s, callflow.Block{}, fmt.Errorf("%w: %s", ErrDuplicateBlock, b.ID)
	}
	t, err := callflow.ParseBlockType(string(b.Type))
	if err != nil {
		return s, callflow.Block{}, fmt.Errorf("%w: %q", ErrUnknownType, b.Type)
	}
	b.Type = t
	if b.Next == nil {
		b.Next = []string{}
	}
	for _, to := range callflow.Edges(b) {
		if to != b.ID && out.blockIndex(to) < 0 {
			return s, callflow.Block{}, fmt.Errorf("%w: %s", ErrDanglingEdge, to)
		}
	}

	from := out.ConnectingFrom
	src := -1
	if from != "" {
		src = out.blockIndex(from)
	}
	if src >= 0 {
		if b.Position == (callflow.Position{}) {
			p := out.Draft.Blocks[src].Position
			b.Position = callflow.Position{X: p.X, Y: p.Y + CellHeight}
		}
	} else if b.Position == (callflow.Position{}) {
		b.Position = NextFreeCell(out.Draft.Blocks)
	}

	out.Draft.Blocks = append(out.Draft.Blocks, b)
	if src >= 0 {
		connect(&out.Draft.Blocks[src], b.ID)
	}
	out.ConnectingFrom = ""
	out.Dirty = true
	return out, b, nil
}

// Patch is a partial update of a block. Config is merged key by key into
// the block's config; a null value clears that key. Position and Next
// replace the current values when set.
type Patch struct {
	Config   map[string]any     `json:"config,omitempty"`
	Position *callflow.Position `json:"position,omitempty"`
	Next     *[]string          `json:"next,omitempty"`
}

// UpdateBlock applies p to the block with id.
func UpdateBlock(s State, id string, p Patch) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	i := out.blockIndex(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}

	b := out.Draft.Blocks[i]
	if len(p.Config) > 0 {
		cfg, err := mergeConfig(b.Config, p.Config)
		if err != nil {
			return s, err
		}
		b.Config = cfg
	}
	if p.Position != nil {
		b.Position = *p.Position
	}
	if p.Next != nil {
		b.Next = append([]string{}, (*p.Next)...)
	}
	for _, to := range callflow.Edges(b) {
		if out.blockIndex(to) < 0 {
			return s, fmt.Errorf("%w: %s", ErrDanglingEdge, to)
		}
	}

	out.Draft.Blocks[i] = b
	out.Dirty = true
	return out, nil
}

// DeleteBlock removes a block and every reference to it.
func DeleteBlock(s State, id string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	i := out.blockIndex(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}

	blocks := append(out.Draft.Blocks[:i:i], out.Draft.Blocks[i+1:]...)
	out.Draft.Blocks = callflow.RemoveEdgesTo(blocks, id)
	if out.Draft.Blocks == nil {
		out.Draft.Blocks = []callflow.Block{}
	}
	if out.Draft.EntryBlockID == id {
		out.Draft.EntryBlockID = ""
	}
	if out.SelectedID == id {
		out.SelectedID = ""
	}
	if out.ConnectingFrom == id {
		out.ConnectingFrom = ""
	}
	out.Dirty = true
	return out, nil
}

// Select makes id the active edit target. An empty id clears the selection.
func Select(s State, id string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	if id != "" && out.blockIndex(id) < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	out.SelectedID = id
	return out, nil
}

// StartConnecting enters pending-connection mode from the block with id.
func StartConnecting(s State, from string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	if out.blockIndex(from) < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, from)
	}
	out.ConnectingFrom = from
	return out, nil
}

func CancelConnecting(s State) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	out.ConnectingFrom = ""
	return out, nil
}

// ConnectBlocks adds the edge from -> to unless it already exists. For a
// menu the first option without a target is bound to to.
func ConnectBlocks(s State, from, to string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	i := out.blockIndex(from)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, from)
	}
	if out.blockIndex(to) < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, to)
	}
	if connect(&out.Draft.Blocks[i], to) {
		out.Dirty = true
	}
	if out.ConnectingFrom == from {
		out.ConnectingFrom = ""
	}
	return out, nil
}

// DisconnectBlocks removes the edge from -> to, including menu option and
// default targets. A missing edge is a no-op.
func DisconnectBlocks(s State, from, to string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	i := out.blockIndex(from)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, from)
	}
	b := &out.Draft.Blocks[i]
	changed := false
	kept := b.Next[:0:0]
	for _, id := range b.Next {
		if id == to {
			changed = true
			continue
		}
		kept = append(kept, id)
	}
	b.Next = kept
	for j := range b.Config.Options {
		if b.Config.Options[j].Target == to {
			b.Config.Options[j].Target = ""
			changed = true
		}
	}
	if b.Config.DefaultTarget == to {
		b.Config.DefaultTarget = ""
		changed = true
	}
	if changed {
		out.Dirty = true
	}
	return out, nil
}

func SetName(s State, name string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	out.Draft.Name = strings.TrimSpace(name)
	out.Dirty = true
	return out, nil
}

func SetPhoneNumber(s State, phoneNumber string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	out.Draft.PhoneNumber = strings.TrimSpace(phoneNumber)
	out.Dirty = true
	return out, nil
}

func SetRecording(s State, enabled bool, disclaimer string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	out.Draft.RecordingEnabled = enabled
	out.Draft.RecordingDisclaimer = disclaimer
	out.Dirty = true
	return out, nil
}

// SetEntryBlock pins the start block. An empty id goes back to inferring it.
func SetEntryBlock(s State, id string) (State, error) {
	out, err := s.editable()
	if err != nil {
		return s, err
	}
	if id != "" && out.blockIndex(id) < 0 {
		return s, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	out.Draft.EntryBlockID = id
	out.Dirty = true
	return out, nil
}

// connect adds to as an edge of b. It reports whether b changed.
func connect(b *callflow.Block, to string) bool {
	changed := false
	if !b.HasEdge(to) {
		b.Next = append(b.Next, to)
		changed = true
	}
	if b.Type == callflow.BlockMenu {
		bound := false
		for _, o := range b.Config.Options {
			if o.Target == to {
				bound = true
				break
			}
		}
		if !bound {
			for j := range b.Config.Options {
				if b.Config.Options[j].Target == "" {
					b.Config.Options[j].Target = to
					changed = true
					break
				}
			}
		}
	}
	return changed
}

package callflow

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// BlockType is the closed set of call behaviors a block can have.
type BlockType string

const (
	BlockSay          BlockType = "say"
	BlockMenu         BlockType = "menu"
	BlockForward      BlockType = "forward"
	BlockMultiForward BlockType = "multi_forward"
	BlockPause        BlockType = "pause"
	BlockPlay         BlockType = "play"
	BlockSMS          BlockType = "sms"
	BlockHangup       BlockType = "hangup"
)

// blockTypeGather is the older name for a menu block. It is accepted on
// decode and normalized to BlockMenu.
const blockTypeGather BlockType = "gather"

// Known reports whether t is one of the supported block types.
func (t BlockType) Known() bool {
	switch t {
	case BlockSay, BlockMenu, BlockForward, BlockMultiForward, BlockPause, BlockPlay, BlockSMS, BlockHangup:
		return true
	default:
		return false
	}
}

// ParseBlockType normalizes a stored or user-supplied type name.
func ParseBlockType(s string) (BlockType, error) {
	t := BlockType(strings.ToLower(strings.TrimSpace(s)))
	if t == blockTypeGather {
		return BlockMenu, nil
	}
	if !t.Known() {
		return "", fmt.Errorf("callflow: unknown block type %q", s)
	}
	return t, nil
}

func (t *BlockType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseBlockType(s)
	if err != nil {
		// Keep the raw value so Validate can report it with the block id.
		*t = BlockType(s)
		return nil
	}
	*t = parsed
	return nil
}

// Position is a canvas coordinate. It has no effect on execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Block is one node of a call-flow graph.
//
// Next holds outgoing edges as block ids. For a menu the option targets are
// the authoritative edges; Next mirrors them so that generic graph walks
// (reachability, edge stripping) see every edge.
type Block struct {
	ID       string    `json:"id"`
	Type     BlockType `json:"type"`
	Config   Config    `json:"config"`
	Position Position  `json:"position"`
	Next     []string  `json:"next"`
}

// MenuOption maps one caller key press to a target block.
type MenuOption struct {
	Digit  string `json:"digit"`
	Label  string `json:"label,omitempty"`
	Target string `json:"target,omitempty"`
}

// Config is the union of every block type's settings. Only the fields
// relevant to a block's Type are read.
type Config struct {
	// say
	Text     string `json:"text,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`

	// menu
	Prompt         string       `json:"prompt,omitempty"`
	Options        []MenuOption `json:"options,omitempty"`
	MaxRetries     *int         `json:"max_retries,omitempty"`
	DefaultTarget  string       `json:"default_target,omitempty"`
	InvalidMessage string       `json:"invalid_message,omitempty"`

	// forward / multi_forward
	Number   string   `json:"number,omitempty"`
	Numbers  []string `json:"numbers,omitempty"`
	Timeout  int      `json:"timeout,omitempty"` // ring timeout, seconds
	CallerID string   `json:"caller_id,omitempty"`

	// pause
	Duration int `json:"duration,omitempty"` // seconds

	// play
	URL  string `json:"url,omitempty"`
	Loop int    `json:"loop,omitempty"`

	// sms; an empty To means the caller.
	Body string `json:"body,omitempty"`
	To   string `json:"to,omitempty"`
}

// MenuPrompt returns the text spoken while collecting digits.
func (c Config) MenuPrompt() string {
	if strings.TrimSpace(c.Prompt) != "" {
		return c.Prompt
	}
	return c.Text
}

// Option returns the menu option bound to digit.
func (c Config) Option(digit string) (MenuOption, bool) {
	for _, o := range c.Options {
		if o.Digit == digit {
			return o, true
		}
	}
	return MenuOption{}, false
}

// DialTargets returns the destinations of a forward or multi_forward block.
func (b Block) DialTargets() []string {
	switch b.Type {
	case BlockForward:
		if strings.TrimSpace(b.Config.Number) == "" {
			return nil
		}
		return []string{strings.TrimSpace(b.Config.Number)}
	case BlockMultiForward:
		out := make([]string, 0, len(b.Config.Numbers))
		for _, n := range b.Config.Numbers {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

// HasEdge reports whether to is already an outgoing edge of b.
func (b Block) HasEdge(to string) bool {
	for _, id := range b.Next {
		if id == to {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing slices.
func (b Block) Clone() Block {
	out := b
	out.Next = append([]string(nil), b.Next...)
	out.Config.Options = append([]MenuOption(nil), b.Config.Options...)
	out.Config.Numbers = append([]string(nil), b.Config.Numbers...)
	if b.Config.MaxRetries != nil {
		n := *b.Config.MaxRetries
		out.Config.MaxRetries = &n
	}
	return out
}

// CloneBlocks deep-copies a block slice.
func CloneBlocks(in []Block) []Block {
	if in == nil {
		return nil
	}
	out := make([]Block, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewBlockID returns a new unique, time-ordered block id.
func NewBlockID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

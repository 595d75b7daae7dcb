package flowstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"callflow-platform/internal/callflow"
)

// Legacy flows stored a greeting and a single menu directly instead of a
// block graph:
//
//	{"greeting": "Hi", "menu": {"prompt": "Press 1", "options": [{"digit": "1", "target": "sales"}]}}
type legacyConfig struct {
	Greeting string      `json:"greeting"`
	Voice    string      `json:"voice,omitempty"`
	Menu     *legacyMenu `json:"menu,omitempty"`
}

type legacyMenu struct {
	Prompt  string         `json:"prompt"`
	Options []legacyOption `json:"options"`
}

type legacyOption struct {
	Digit  json.RawMessage `json:"digit"`
	Label  string          `json:"label,omitempty"`
	Target string          `json:"target,omitempty"`
}

// wrappedBlocks is the {"blocks": [...]} form some exports use.
type wrappedBlocks struct {
	Blocks []callflow.Block `json:"blocks"`
}

// Layout used for blocks generated from legacy configs.
const (
	legacyOriginX = 100
	legacyOriginY = 100
	legacyRowStep = 150
)

// Ids of blocks produced from a legacy config.
const (
	LegacySayBlockID  = "legacy-greeting"
	LegacyMenuBlockID = "legacy-menu"
)

var ErrUnknownShape = errors.New("flowstore: unrecognized blocks payload")

// DecodeBlocks turns a stored blocks payload into the graph shape. It
// reports whether the payload was in the legacy format. This is the only
// place that knows about more than one representation.
func DecodeBlocks(raw []byte) ([]callflow.Block, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []callflow.Block{}, false, nil
	}

	switch raw[0] {
	case '[':
		var blocks []callflow.Block
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, false, fmt.Errorf("flowstore: decode blocks: %w", err)
		}
		return normalize(blocks), false, nil
	case '{':
		var shape map[string]json.RawMessage
		if err := json.Unmarshal(raw, &shape); err != nil {
			return nil, false, fmt.Errorf("flowstore: decode blocks: %w", err)
		}
		if _, ok := shape["blocks"]; ok {
			var w wrappedBlocks
			if err := json.Unmarshal(raw, &w); err != nil {
				return nil, false, fmt.Errorf("flowstore: decode wrapped blocks: %w", err)
			}
			return normalize(w.Blocks), false, nil
		}
		_, hasGreeting := shape["greeting"]
		_, hasMenu := shape["menu"]
		if !hasGreeting && !hasMenu {
			return nil, false, ErrUnknownShape
		}
		var legacy legacyConfig
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, false, fmt.Errorf("flowstore: decode legacy config: %w", err)
		}
		return convertLegacy(legacy), true, nil
	default:
		return nil, false, ErrUnknownShape
	}
}

// EncodeBlocks serializes blocks in the current graph format.
func EncodeBlocks(blocks []callflow.Block) ([]byte, error) {
	if blocks == nil {
		blocks = []callflow.Block{}
	}
	return json.Marshal(normalize(blocks))
}

// convertLegacy builds the equivalent say -> menu graph for a legacy
// config. Block ids are fixed so that a call in progress can resume on a
// flow that is converted again on the next callback.
func convertLegacy(l legacyConfig) []callflow.Block {
	var blocks []callflow.Block
	y := float64(legacyOriginY)

	var say *callflow.Block
	if strings.TrimSpace(l.Greeting) != "" {
		blocks = append(blocks, callflow.Block{
			ID:       LegacySayBlockID,
			Type:     callflow.BlockSay,
			Config:   callflow.Config{Text: l.Greeting, Voice: l.Voice},
			Position: callflow.Position{X: legacyOriginX, Y: y},
			Next:     []string{},
		})
		say = &blocks[len(blocks)-1]
		y += legacyRowStep
	}

	if l.Menu != nil {
		opts := make([]callflow.MenuOption, 0, len(l.Menu.Options))
		for _, o := range l.Menu.Options {
			label := o.Label
			if label == "" {
				label = o.Target
			}
			// Legacy targets were free-form labels, not block ids.
			opts = append(opts, callflow.MenuOption{Digit: legacyDigit(o.Digit), Label: label})
		}
		menu := callflow.Block{
			ID:       LegacyMenuBlockID,
			Type:     callflow.BlockMenu,
			Config:   callflow.Config{Prompt: l.Menu.Prompt, Voice: l.Voice, Options: opts},
			Position: callflow.Position{X: legacyOriginX, Y: y},
			Next:     []string{},
		}
		if say != nil {
			say.Next = append(say.Next, menu.ID)
		}
		blocks = append(blocks, menu)
	}
	if blocks == nil {
		blocks = []callflow.Block{}
	}
	return blocks
}

// legacyDigit accepts both "1" and 1.
func legacyDigit(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `" `)
}

// normalize makes nil slices empty so encoded flows round-trip.
func normalize(blocks []callflow.Block) []callflow.Block {
	out := callflow.CloneBlocks(blocks)
	if out == nil {
		return []callflow.Block{}
	}
	for i := range out {
		if out[i].Next == nil {
			out[i].Next = []string{}
		}
	}
	return out
}

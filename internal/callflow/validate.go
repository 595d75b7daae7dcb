package callflow

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a validation finding.
type Code string

const (
	CodeDuplicateBlock        Code = "duplicate_block"
	CodeUnknownType           Code = "unknown_type"
	CodeDanglingEdge          Code = "dangling_edge"
	CodeNoEntryPoint          Code = "no_entry_point"
	CodeMissingRequiredConfig Code = "missing_required_config"

	// Warnings.
	CodeMultipleAmbiguousEntries Code = "multiple_ambiguous_entries"
	CodeUnreachableBlock         Code = "unreachable_block"
)

// ErrInvalidFlow is matched by every *ValidationError via errors.Is.
var ErrInvalidFlow = errors.New("callflow: invalid flow")

// ValidationError is a hard validation failure.
type ValidationError struct {
	Code    Code   `json:"code"`
	BlockID string `json:"block_id,omitempty"`
	Reason  string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.BlockID != "" {
		return fmt.Sprintf("callflow: %s: block %q: %s", e.Code, e.BlockID, e.Reason)
	}
	return fmt.Sprintf("callflow: %s: %s", e.Code, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidFlow }

// Warning is a non-fatal finding the editor may surface.
type Warning struct {
	Code    Code     `json:"code"`
	BlockID string   `json:"block_id,omitempty"`
	Related []string `json:"related,omitempty"`
	Message string   `json:"message"`
}

// Report holds the outcome of a successful validation.
type Report struct {
	// EntryBlockID is the block a fresh call would start at.
	EntryBlockID string    `json:"entry_block_id"`
	Warnings     []Warning `json:"warnings,omitempty"`
}

// HasWarning reports whether a warning with code was emitted.
func (r Report) HasWarning(code Code) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a block set. It is pure.
func Validate(blocks []Block) (Report, error) {
	return validate(blocks, "")
}

// ValidateFlow validates f.Blocks honouring an explicit entry block.
func ValidateFlow(f CallFlow) (Report, error) {
	return validate(f.Blocks, f.EntryBlockID)
}

func validate(blocks []Block, explicitEntry string) (Report, error) {
	seen := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b.ID) == "" {
			return Report{}, &ValidationError{Code: CodeMissingRequiredConfig, Reason: "block id is empty"}
		}
		if _, dup := seen[b.ID]; dup {
			return Report{}, &ValidationError{Code: CodeDuplicateBlock, BlockID: b.ID, Reason: "block id used more than once"}
		}
		seen[b.ID] = struct{}{}
		if !b.Type.Known() {
			return Report{}, &ValidationError{Code: CodeUnknownType, BlockID: b.ID, Reason: fmt.Sprintf("unknown block type %q", b.Type)}
		}
	}

	for _, b := range blocks {
		for _, to := range Edges(b) {
			if _, ok := seen[to]; !ok {
				return Report{}, &ValidationError{Code: CodeDanglingEdge, BlockID: b.ID, Reason: fmt.Sprintf("edge to missing block %q", to)}
			}
		}
	}

	for _, b := range blocks {
		if err := checkConfig(b); err != nil {
			return Report{}, err
		}
	}

	var rep Report
	if explicitEntry != "" {
		if _, ok := seen[explicitEntry]; !ok {
			return Report{}, &ValidationError{Code: CodeDanglingEdge, BlockID: explicitEntry, Reason: "entry block does not exist"}
		}
		rep.EntryBlockID = explicitEntry
	} else {
		cands := EntryCandidates(blocks)
		switch {
		case len(blocks) == 0:
			return Report{}, &ValidationError{Code: CodeNoEntryPoint, Reason: "flow has no blocks"}
		case len(cands) == 0:
			return Report{}, &ValidationError{Code: CodeNoEntryPoint, Reason: "every block has an incoming edge"}
		case len(cands) > 1:
			rep.Warnings = append(rep.Warnings, Warning{
				Code:    CodeMultipleAmbiguousEntries,
				BlockID: cands[0],
				Related: cands[1:],
				Message: fmt.Sprintf("%d blocks have no incoming edge; the earliest added is the entry", len(cands)),
			})
		}
		rep.EntryBlockID = cands[0]
	}

	reach := Reachable(blocks, rep.EntryBlockID)
	for _, b := range blocks {
		if !reach[b.ID] && !rep.HasEntryCandidate(b.ID) {
			rep.Warnings = append(rep.Warnings, Warning{
				Code:    CodeUnreachableBlock,
				BlockID: b.ID,
				Message: "block cannot be reached from the entry block",
			})
		}
	}
	return rep, nil
}

// HasEntryCandidate reports whether id was listed as an ambiguous entry.
// Such blocks are already covered by the ambiguity warning.
func (r Report) HasEntryCandidate(id string) bool {
	for _, w := range r.Warnings {
		if w.Code != CodeMultipleAmbiguousEntries {
			continue
		}
		if w.BlockID == id {
			return true
		}
		for _, rel := range w.Related {
			if rel == id {
				return true
			}
		}
	}
	return false
}

func checkConfig(b Block) error {
	missing := func(reason string) error {
		return &ValidationError{Code: CodeMissingRequiredConfig, BlockID: b.ID, Reason: reason}
	}
	c := b.Config
	switch b.Type {
	case BlockSay:
		if strings.TrimSpace(c.Text) == "" {
			return missing("say requires text")
		}
	case BlockPlay:
		if strings.TrimSpace(c.URL) == "" {
			return missing("play requires an audio url")
		}
	case BlockPause:
		if c.Duration <= 0 {
			return missing("pause requires a positive duration")
		}
	case BlockSMS:
		if strings.TrimSpace(c.Body) == "" {
			return missing("sms requires a message body")
		}
	case BlockForward:
		if strings.TrimSpace(c.Number) == "" {
			return missing("forward requires a destination number")
		}
		if c.Timeout < 0 {
			return missing("forward timeout must not be negative")
		}
	case BlockMultiForward:
		if len(b.DialTargets()) == 0 {
			return missing("multi_forward requires at least one destination number")
		}
		if c.Timeout < 0 {
			return missing("multi_forward timeout must not be negative")
		}
	case BlockMenu:
		if strings.TrimSpace(c.MenuPrompt()) == "" {
			return missing("menu requires a prompt")
		}
		if len(c.Options) == 0 {
			return missing("menu requires at least one option")
		}
		digits := make(map[string]struct{}, len(c.Options))
		for _, o := range c.Options {
			if !validDigit(o.Digit) {
				return missing(fmt.Sprintf("menu option digit %q must be one of 0-9, * or #", o.Digit))
			}
			if _, dup := digits[o.Digit]; dup {
				return missing(fmt.Sprintf("menu digit %q is used more than once", o.Digit))
			}
			digits[o.Digit] = struct{}{}
		}
		if c.MaxRetries != nil && *c.MaxRetries < 0 {
			return missing("menu max_retries must not be negative")
		}
	case BlockHangup:
	}
	return nil
}

func validDigit(d string) bool {
	if len(d) != 1 {
		return false
	}
	ch := d[0]
	return (ch >= '0' && ch <= '9') || ch == '*' || ch == '#'
}

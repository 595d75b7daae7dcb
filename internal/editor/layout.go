package editor

import (
	"encoding/json"
	"fmt"
	"math"

	"callflow-platform/internal/callflow"
)

// Auto-layout grid.
const (
	GridOriginX = 100
	GridOriginY = 100
	CellWidth   = 250
	CellHeight  = 150
	GridColumns = 4

	// A cell is taken when a block sits closer than this on both axes.
	ProximityThreshold = 50
)

// NextFreeCell scans the grid row by row and returns the first cell with no
// block near it.
func NextFreeCell(blocks []callflow.Block) callflow.Position {
	for i := 0; ; i++ {
		p := callflow.Position{
			X: GridOriginX + float64(i%GridColumns)*CellWidth,
			Y: GridOriginY + float64(i/GridColumns)*CellHeight,
		}
		if !occupied(blocks, p) {
			return p
		}
	}
}

func occupied(blocks []callflow.Block, p callflow.Position) bool {
	for _, b := range blocks {
		if math.Abs(b.Position.X-p.X) < ProximityThreshold && math.Abs(b.Position.Y-p.Y) < ProximityThreshold {
			return true
		}
	}
	return false
}

// mergeConfig overlays patch keys onto cfg using the config's JSON names.
func mergeConfig(cfg callflow.Config, patch map[string]any) (callflow.Config, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return cfg, err
	}
	for k, v := range patch {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	var out callflow.Config
	if err := json.Unmarshal(raw, &out); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return out, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"callflow-platform/internal/callflow"
	"callflow-platform/internal/flowstore"
	"callflow-platform/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Validate, simulate and store call flows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional; the environment wins over it.
			_ = godotenv.Load()
			env, _ := cmd.Flags().GetString("env")
			slog.SetDefault(logger.NewWithWriter(env, cmd.ErrOrStderr()))
			return nil
		},
	}
	root.PersistentFlags().String("env", "local", "log format: local (text) or dev/staging/production (json)")

	root.AddCommand(
		newValidateCmd(),
		newSimulateCmd(),
		newMigrateCmd(),
		newSchemaCmd(),
		newTokenCmd(),
	)
	return root
}

// flowFile is the on-disk form accepted by validate and simulate: a full
// flow object, a bare blocks array, or a legacy greeting/menu config.
type flowFile struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	PhoneNumber         string `json:"phone_number"`
	EntryBlockID        string `json:"entry_block_id"`
	RecordingEnabled    bool   `json:"recording_enabled"`
	RecordingDisclaimer string `json:"recording_disclaimer"`
}

func readFlowFile(path string) (callflow.CallFlow, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return callflow.CallFlow{}, false, err
	}
	blocks, legacy, err := flowstore.DecodeBlocks(raw)
	if err != nil {
		return callflow.CallFlow{}, false, fmt.Errorf("%s: %w", path, err)
	}
	var meta flowFile
	// Arrays carry no metadata; ignore the error for them.
	_ = json.Unmarshal(raw, &meta)
	return callflow.CallFlow{
		ID:                  meta.ID,
		Name:                meta.Name,
		PhoneNumber:         meta.PhoneNumber,
		Blocks:              blocks,
		EntryBlockID:        meta.EntryBlockID,
		RecordingEnabled:    meta.RecordingEnabled,
		RecordingDisclaimer: meta.RecordingDisclaimer,
	}, legacy, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

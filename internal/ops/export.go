package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/thought"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	SessionID string
	BaseDir   string // exports are written under BaseDir/exports
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// exportFile is the on-disk layout of a session export.
type exportFile struct {
	TrellisExport bool               `json:"_trellis_export"`
	SchemaVersion string             `json:"schema_version"`
	ExportedAt    int64              `json:"exported_at"`
	SessionID     string             `json:"session_id"`
	MainLine      []*thought.Thought `json:"main_line"`
	Branches      []*thought.Branch  `json:"branches"`
}

// Export writes a session's full chain and branches as a JSON file under
// the exports directory. The write goes to a temp file first and is renamed
// into place, so a failed export never leaves a truncated file behind.
func Export(ctx context.Context, st store.Store, input ExportInput) (*ExportOutput, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, errors.NewInvalidRequest("session_id is required")
	}

	chain, err := Chain(ctx, st, ChainInput{SessionID: input.SessionID, Full: true})
	if err != nil {
		return nil, err
	}
	branches, err := Branches(ctx, st, BranchesInput{SessionID: input.SessionID})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exportsDir := filepath.Join(input.BaseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create exports directory: %w", err))
	}

	fileName := fmt.Sprintf("session-%s-%s.json", sanitizeFileName(input.SessionID), now.UTC().Format("20060102T150405Z"))
	exportPath := filepath.Join(exportsDir, fileName)

	payload := exportFile{
		TrellisExport: true,
		SchemaVersion: "1.0",
		ExportedAt:    now.Unix(),
		SessionID:     input.SessionID,
		MainLine:      chain.Thoughts,
		Branches:      branches.Branches,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to write export file: %w", err))
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		os.Remove(tempPath)
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export file: %w", err))
	}

	return &ExportOutput{
		Path:       exportPath,
		Count:      chain.TotalInSession,
		ExportedAt: now.Unix(),
	}, nil
}

// sanitizeFileName keeps session IDs safe to embed in a file name.
func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

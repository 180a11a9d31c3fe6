package tables

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Publisher stages a set of artifacts and moves them into place together.
// Nothing is visible at the final paths until Commit succeeds, and a failed
// Commit restores whatever was there before.
type Publisher struct {
	stagingDir string
	entries    []stagedFile
	done       bool
}

type stagedFile struct {
	staged string
	final  string
}

// NewPublisher creates a staging directory next to targetDir so that the
// final renames stay on one filesystem.
func NewPublisher(targetDir string) (*Publisher, error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create target directory", err)
	}
	staging, err := os.MkdirTemp(targetDir, ".staging-")
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create staging directory", err)
	}
	return &Publisher{stagingDir: staging}, nil
}

// stage reserves a staging path for finalPath, keeping its extension
func (p *Publisher) stage(finalPath string) string {
	staged := filepath.Join(p.stagingDir, fmt.Sprintf("%02d_%s", len(p.entries), filepath.Base(finalPath)))
	p.entries = append(p.entries, stagedFile{staged: staged, final: finalPath})
	return staged
}

// WriteTable stages a table for finalPath
func (p *Publisher) WriteTable(ctx context.Context, finalPath string, t *panel.Panel) error {
	return Write(ctx, p.stage(finalPath), t)
}

// WriteJSON stages an indented JSON document for finalPath
func (p *Publisher) WriteJSON(finalPath string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to marshal %s", filepath.Base(finalPath)), err)
	}
	if err := os.WriteFile(p.stage(finalPath), data, 0644); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to stage %s", filepath.Base(finalPath)), err)
	}
	return nil
}

// WriteWith stages an artifact produced by write, which receives the staging path
func (p *Publisher) WriteWith(finalPath string, write func(path string) error) error {
	return write(p.stage(finalPath))
}

// Commit moves every staged artifact to its final path. Existing files are
// backed up first and restored if any move fails.
func (p *Publisher) Commit(ctx context.Context) error {
	if p.done {
		return apperrors.NewStorageError("publisher already finished", nil)
	}
	defer p.cleanup()

	var moved []stagedFile
	var backups []string
	rollback := func() {
		for i := len(moved) - 1; i >= 0; i-- {
			os.Remove(moved[i].final)
		}
		for _, b := range backups {
			os.Rename(b, b[:len(b)-len(".bak")])
		}
	}

	for _, e := range p.entries {
		if err := os.MkdirAll(filepath.Dir(e.final), 0755); err != nil {
			rollback()
			return apperrors.NewStorageError("failed to create output directory", err)
		}
		if Exists(e.final) {
			backup := e.final + ".bak"
			if err := os.Rename(e.final, backup); err != nil {
				rollback()
				return apperrors.NewStorageError(fmt.Sprintf("failed to back up %s", e.final), err)
			}
			backups = append(backups, backup)
		}
		if err := os.Rename(e.staged, e.final); err != nil {
			rollback()
			return apperrors.NewStorageError(fmt.Sprintf("failed to publish %s", e.final), err)
		}
		moved = append(moved, e)
	}

	for _, b := range backups {
		os.Remove(b)
	}

	slog.InfoContext(ctx, "artifacts_published",
		slog.Int("count", len(moved)),
		slog.String("directory", filepath.Dir(p.stagingDir)))
	return nil
}

// Abort discards everything staged so far
func (p *Publisher) Abort() {
	if p.done {
		return
	}
	p.cleanup()
}

func (p *Publisher) cleanup() {
	p.done = true
	os.RemoveAll(p.stagingDir)
}

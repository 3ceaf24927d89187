// Package runstate persists which pipeline stage last completed, as a
// resume-bookkeeping record under cache_dir. The pipeline only writes
// it and never reads it back: the manifest and download stages skip
// work when their output already exists, while extraction and reduction
// rewrite their output on every run.
package runstate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Stage names the pipeline stages whose completion is worth recording.
type Stage string

const (
	StageChannelManifest   Stage = "channel_manifest"
	StageInstallerManifest Stage = "installer_manifest"
	StageSelect            Stage = "select"
	StageDownload          Stage = "download"
	StageExtract           Stage = "extract"
	StageReduce            Stage = "reduce"
)

// State is the on-disk run-state record.
type State struct {
	LastStage   string    `toml:"last_stage"`
	CompletedAt time.Time `toml:"completed_at"`
}

// Load reads the run-state file at path. A missing file is not an
// error; it returns a zero-value State.
func Load(path string) (*State, error) {
	var s State
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &s, nil
		}
		return nil, fmt.Errorf("runstate: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("runstate: parsing %s: %w", path, err)
	}
	return &s, nil
}

// Record marks stage as the most recently completed stage and
// persists it atomically.
func Record(path string, stage Stage) error {
	s := State{LastStage: string(stage), CompletedAt: time.Now().UTC()}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("runstate: encoding state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.part", filepath.Base(path), uuid.NewString()))
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

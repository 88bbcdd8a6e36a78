package drafts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister writes the draft file as JSON and rotates a sidecar backup
// on every successful flush, so a crash mid-write to the primary file can
// still recover from the previous good state.
type FilePersister struct {
	path       string
	backupPath string
}

// NewFilePersister builds a FilePersister writing to path, with a sidecar
// backup at path+".bak".
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path, backupPath: path + ".bak"}
}

// Load reads the draft file, returning an empty File if it doesn't exist
// yet (first run). A corrupt primary file falls back to the sidecar
// backup before giving up.
func (p *FilePersister) Load() (File, error) {
	file, err := p.readFile(p.path)
	if err == nil {
		return file, nil
	}
	if os.IsNotExist(err) {
		return File{Version: CurrentFileVersion, Drafts: map[string]ChatDraft{}}, nil
	}

	backup, backupErr := p.readFile(p.backupPath)
	if backupErr == nil {
		return backup, nil
	}
	return File{}, fmt.Errorf("read draft file %q: %w (backup also unreadable: %v)", p.path, err, backupErr)
}

func (p *FilePersister) readFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse draft file %q: %w", path, err)
	}
	return f, nil
}

// Save writes file to a temp path, rotates the current primary file to the
// backup path, then renames the temp file into place — so a crash at any
// point leaves either the old primary, the backup, or the new primary
// intact, never a half-written file in the read path.
func (p *FilePersister) Save(file File) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create draft dir: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal draft file: %w", err)
	}

	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write draft temp file: %w", err)
	}

	if _, err := os.Stat(p.path); err == nil {
		if err := os.Rename(p.path, p.backupPath); err != nil {
			return fmt.Errorf("rotate draft backup: %w", err)
		}
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("commit draft file: %w", err)
	}
	return nil
}

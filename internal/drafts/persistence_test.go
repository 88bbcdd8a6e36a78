package drafts

import (
	"path/filepath"
	"testing"
)

func TestFilePersisterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePersister(filepath.Join(dir, "drafts.json"))

	file := File{
		Version: CurrentFileVersion,
		Drafts: map[string]ChatDraft{
			"c1": {Key: "c1", Content: "hello"},
		},
	}
	if err := p.Save(file); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := p.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Drafts["c1"].Content != "hello" {
		t.Fatalf("expected round-tripped content, got %+v", loaded)
	}
}

func TestFilePersisterLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePersister(filepath.Join(dir, "nope.json"))

	loaded, err := p.Load()
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(loaded.Drafts) != 0 {
		t.Fatal("expected empty draft map for a first run")
	}
}

func TestFilePersisterRotatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drafts.json")
	p := NewFilePersister(path)

	first := File{Version: CurrentFileVersion, Drafts: map[string]ChatDraft{"c1": {Key: "c1", Content: "v1"}}}
	second := File{Version: CurrentFileVersion, Drafts: map[string]ChatDraft{"c1": {Key: "c1", Content: "v2"}}}

	if err := p.Save(first); err != nil {
		t.Fatalf("save v1 failed: %v", err)
	}
	if err := p.Save(second); err != nil {
		t.Fatalf("save v2 failed: %v", err)
	}

	backup, err := p.readFile(p.backupPath)
	if err != nil {
		t.Fatalf("expected a readable backup file: %v", err)
	}
	if backup.Drafts["c1"].Content != "v1" {
		t.Fatalf("expected backup to hold the previous version, got %+v", backup)
	}

	current, err := p.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if current.Drafts["c1"].Content != "v2" {
		t.Fatalf("expected current file to hold the latest version, got %+v", current)
	}
}

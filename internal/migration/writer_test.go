package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testMigration() *Migration {
	up := NewScript()
	up.Add(PhaseCreateTables, "CREATE TABLE [dbo].[users] ([id] INT NOT NULL);")
	down := NewScript()
	down.Add(PhaseDropTables, "DROP TABLE [dbo].[users];")
	return &Migration{Name: "0001_users", Up: up, Down: down}
}

func TestWriterWritesBothScripts(t *testing.T) {
	root := t.TempDir()
	dir, err := NewWriter(root).Write(testMigration())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if dir != filepath.Join(root, "0001_users") {
		t.Errorf("unexpected migration directory %q", dir)
	}

	up, err := os.ReadFile(filepath.Join(dir, "up.sql"))
	if err != nil {
		t.Fatalf("up.sql missing: %v", err)
	}
	if !strings.HasPrefix(string(up), ScriptHeader) {
		t.Error("up.sql must start with the generation header")
	}
	if !strings.Contains(string(up), "CREATE TABLE [dbo].[users]") {
		t.Error("up.sql must carry the up statements")
	}

	down, err := os.ReadFile(filepath.Join(dir, "down.sql"))
	if err != nil {
		t.Fatalf("down.sql missing: %v", err)
	}
	if !strings.Contains(string(down), "DROP TABLE [dbo].[users]") {
		t.Error("down.sql must carry the down statements")
	}
}

func TestWriterLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	dir, err := NewWriter(root).Write(testMigration())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("temp file %s survived the write", entry.Name())
		}
	}
	if len(entries) != 2 {
		t.Errorf("expected exactly up.sql and down.sql, got %d entries", len(entries))
	}
}

func TestWriterFailsOnUnwritableRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(root, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWriter(root).Write(testMigration()); err == nil {
		t.Fatal("expected an error when the migrations root is not a directory")
	}
}

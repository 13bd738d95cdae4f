package migration

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lofcz/minfold/internal/errors"
)

// Writer persists generated migrations to the migration folder layout:
// <root>/<name>/up.sql and <root>/<name>/down.sql.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at the migrations directory.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Write persists both scripts of a migration. Files are written atomically
// (temp file then rename) so partial files never survive a failure.
func (w *Writer) Write(m *Migration) (string, error) {
	dir := filepath.Join(w.root, m.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewAppError(errors.ErrorTypeIO,
			fmt.Sprintf("cannot create migration directory %s", dir), err)
	}

	if err := writeAtomic(filepath.Join(dir, "up.sql"), m.Up.Render()); err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(dir, "down.sql"), m.Down.Render()); err != nil {
		return "", err
	}
	return dir, nil
}

func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.NewAppError(errors.ErrorTypeIO,
			fmt.Sprintf("cannot create temp file for %s", path), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewAppError(errors.ErrorTypeIO,
			fmt.Sprintf("cannot write %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewAppError(errors.ErrorTypeIO,
			fmt.Sprintf("cannot close %s", path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewAppError(errors.ErrorTypeIO,
			fmt.Sprintf("cannot move %s into place", path), err)
	}
	return nil
}

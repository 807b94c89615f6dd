package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempFilePrefix names the scratch files of in-progress state writes. Load
// removes leftovers matching it.
const TempFilePrefix = "shelf-tmp-"

// renameFile is swapped in tests to stop a write between the temp file and
// the rename.
var renameFile = os.Rename

// writeFileAtomic replaces filename with data. The content goes to a synced
// scratch file in the same directory first, so a crash leaves either the old
// state file or the new one on disk.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)

	tmp, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create scratch file in %s: %w", dir, err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := fillAndSync(tmp, data); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", tmp.Name(), err)
	}
	if err := renameFile(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filename, err)
	}
	renamed = true

	syncDir(dir)
	return nil
}

// fillAndSync writes data to f, flushes it to stable storage and closes it.
func fillAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", f.Name(), err)
	}
	return nil
}

// syncDir persists the rename itself. Not every platform can open a
// directory for syncing; the write is already complete either way.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

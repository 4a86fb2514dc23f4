package transload

import (
	"os"
	"sync"

	"github.com/bitrise-io/go-transload/internal/localfs"
)

// localWriter mirrors the source stream to a local path, truncating and
// creating it up front (spec §6: "a file is truncated-created at that path
// and written through"). Touched only by the Source Reader (spec §5).
type localWriter struct {
	fs   localfs.FS
	path string

	mu   sync.Mutex
	file *os.File
	size uint64
	err  error
}

func newLocalWriter(fs localfs.FS, path string) (*localWriter, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, err
	}
	return &localWriter{fs: fs, path: path, file: f}, nil
}

// Write appends chunk to the file. Once Write has failed once, subsequent
// calls are no-ops; the first error is what Close reports.
func (w *localWriter) Write(chunk []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	n, err := w.file.Write(chunk)
	w.size += uint64(n)
	if err != nil {
		w.err = err
	}
	return err
}

// Close closes the underlying file and returns the accumulated write
// error, if any.
func (w *localWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	closeErr := w.file.Close()
	if w.err != nil {
		return w.err
	}
	return closeErr
}

// Abort closes the file and removes the partial copy. Called instead of
// Close when the source stream fails mid-transfer, so a truncated file is
// never left on disk looking like a complete local save.
func (w *localWriter) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.file.Close()
	if err := w.fs.Remove(w.path); err != nil {
		w.err = err
	}
}

// Result reports the local-save outcome for TransloadResult.Local. Size is
// read back from disk via Stat rather than the tracked write counter, so a
// Result taken after Close reports what was actually persisted.
func (w *localWriter) Result() LocalResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	size := w.size
	if info, err := w.fs.Stat(w.path); err == nil {
		size = uint64(info.Size())
	}
	return LocalResult{Path: w.path, Size: size}
}

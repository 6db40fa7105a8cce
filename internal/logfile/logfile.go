// Package logfile owns the append-only output files (§6): one mutex per
// file, each critical section writing a single buffered payload. Writes
// are best-effort — a write failure never aborts the epoch (§7).
package logfile

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Writer guards one append-only file with a single mutex.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	log  zerolog.Logger
	path string
}

// Open creates or appends to path, ready for concurrent WriteLine calls.
func Open(path string, log zerolog.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, log: log, path: path}, nil
}

// WriteLine appends one line (newline-terminated) inside the file's
// critical section. Failures are logged and swallowed, per §7.
func (w *Writer) WriteLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.WriteString(line + "\n"); err != nil {
		w.log.Warn().Err(err).Str("file", w.path).Msg("log write failed")
	}
}

// Close flushes and closes the underlying file, best-effort.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Close(); err != nil {
		w.log.Warn().Err(err).Str("file", w.path).Msg("log close failed")
	}
}

// Set is the handle to every append-only output file named in §6.
type Set struct {
	Results    *Writer
	ILP        *Writer
	Actions    *Writer
	Rebalance  *Writer
	RTV        *Writer // optional, nil when not enabled
}

// Close closes every non-nil writer in the set.
func (s *Set) Close() {
	for _, w := range []*Writer{s.Results, s.ILP, s.Actions, s.Rebalance, s.RTV} {
		if w != nil {
			w.Close()
		}
	}
}

// OpenSet builds the full log Set under dir. enableRTV controls whether
// rtv.log is opened (§6: "optional").
func OpenSet(dir string, enableRTV bool, log zerolog.Logger) (*Set, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	mk := func(name string) (*Writer, error) { return Open(dir+"/"+name, log) }

	s := &Set{}
	var err error
	if s.Results, err = mk("results.log"); err != nil {
		return nil, err
	}
	if s.ILP, err = mk("ilp.csv"); err != nil {
		return nil, err
	}
	if s.Actions, err = mk("actions.log"); err != nil {
		return nil, err
	}
	if s.Rebalance, err = mk("rebalance.log"); err != nil {
		return nil, err
	}
	if enableRTV {
		if s.RTV, err = mk("rtv.log"); err != nil {
			return nil, err
		}
	}
	return s, nil
}

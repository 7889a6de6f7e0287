package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

// unrecognizedTag prefixes lines in the debug file that matched no pattern.
const unrecognizedTag = "[unrecognized] "

// debugSink is the raw engine output log for one run. Only the reader
// writes to it. A nil *debugSink discards everything.
type debugSink struct {
	f    *os.File
	path string
}

func openDebugSink(path string) (*debugSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open debug file: %w", err)
	}
	return &debugSink{f: f, path: path}, nil
}

func (d *debugSink) write(line string, recognized bool) error {
	if d == nil {
		return nil
	}
	if !recognized {
		line = unrecognizedTag + line
	}
	_, err := d.f.WriteString(line + "\n")
	return err
}

func (d *debugSink) close() error {
	if d == nil {
		return nil
	}
	return d.f.Close()
}

func (d *debugSink) remove() error {
	if d == nil {
		return nil
	}
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

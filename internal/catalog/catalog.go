// Package catalog numbers human-authored strategy templates into the form
// the engine consumes.
//
// A template is plain text. Every line starting with the marker prefix
// (by default "--lua-desync=") is one strategy and gets ":strategy=<N>"
// appended, N counting from 1. Comments ("#") and blank lines pass through.
// TLS and HTTP templates are numbered independently.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Defaults for template parsing.
const (
	DefaultMarker    = "--lua-desync="
	DefaultSeparator = "--new"
)

// ErrTemplateMissing is returned when a required template file does not exist.
var ErrTemplateMissing = errors.New("strategy template missing")

var strategySuffix = regexp.MustCompile(`:strategy=\d+\s*$`)

// Entry is one numbered strategy.
type Entry struct {
	Number int
	Args   string
}

// Catalog is a numbered template.
type Catalog struct {
	lines   []string
	entries []Entry
}

// Number annotates every marker line with a sequential strategy number.
// An existing ":strategy=N" suffix is replaced, so numbering an already
// numbered catalog yields the same output.
func Number(lines []string, marker string) *Catalog {
	if marker == "" {
		marker = DefaultMarker
	}
	c := &Catalog{lines: make([]string, 0, len(lines))}
	n := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || !strings.HasPrefix(trimmed, marker) {
			c.lines = append(c.lines, line)
			continue
		}
		n++
		args := strategySuffix.ReplaceAllString(trimmed, "")
		numbered := args + ":strategy=" + strconv.Itoa(n)
		c.lines = append(c.lines, numbered)
		c.entries = append(c.entries, Entry{Number: n, Args: args})
	}
	return c
}

// Parse reads a template and numbers it.
func Parse(r io.Reader, marker string) (*Catalog, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Number(lines, marker), nil
}

// Load reads and numbers a template file.
// Returns an error wrapping ErrTemplateMissing if the file does not exist.
func Load(path, marker string) (*Catalog, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer f.Close()
	return Parse(f, marker)
}

// Lines returns the numbered lines.
func (c *Catalog) Lines() []string {
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Entries returns the strategies in number order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Count returns the number of strategies.
func (c *Catalog) Count() int {
	return len(c.entries)
}

// Lookup returns the strategy with the given number.
func (c *Catalog) Lookup(n int) (Entry, bool) {
	if n < 1 || n > len(c.entries) {
		return Entry{}, false
	}
	return c.entries[n-1], true
}

// Bytes renders the catalog with a trailing newline.
func (c *Catalog) Bytes() []byte {
	if len(c.lines) == 0 {
		return nil
	}
	return []byte(strings.Join(c.lines, "\n") + "\n")
}

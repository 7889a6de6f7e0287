package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// BuildOptions configures BuildSet.
type BuildOptions struct {
	// TLSTemplate is required.
	TLSTemplate string
	// HTTPTemplate is optional; a missing file degrades to TLS only.
	HTTPTemplate string
	Marker       string
	Separator    string
	// OutputDir receives tls-catalog.txt, http-catalog.txt and engine.conf.
	OutputDir string
}

// BuildResult describes the files BuildSet wrote.
type BuildResult struct {
	TLS        *Catalog
	HTTP       *Catalog // nil when the HTTP template is missing
	ConfigPath string
	Warnings   []string
}

// File names written by BuildSet.
const (
	TLSCatalogFile  = "tls-catalog.txt"
	HTTPCatalogFile = "http-catalog.txt"
	ConfigFile      = "engine.conf"
)

// BuildSet numbers the TLS and HTTP templates and writes the combined engine
// config: the numbered TLS lines, then the separator and the numbered HTTP
// lines when an HTTP template exists.
func BuildSet(opts BuildOptions) (*BuildResult, error) {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tls, err := Load(opts.TLSTemplate, opts.Marker)
	if err != nil {
		return nil, fmt.Errorf("tls catalog: %w", err)
	}
	res := &BuildResult{TLS: tls}

	if opts.HTTPTemplate == "" {
		res.Warnings = append(res.Warnings, "no HTTP strategy template configured, running TLS only")
	} else {
		http, err := Load(opts.HTTPTemplate, opts.Marker)
		switch {
		case errors.Is(err, ErrTemplateMissing):
			res.Warnings = append(res.Warnings, fmt.Sprintf("HTTP strategy template %s not found, running TLS only", opts.HTTPTemplate))
		case err != nil:
			return nil, fmt.Errorf("http catalog: %w", err)
		default:
			res.HTTP = http
		}
	}

	if err := writeFile(filepath.Join(opts.OutputDir, TLSCatalogFile), tls.Bytes()); err != nil {
		return nil, err
	}

	var conf bytes.Buffer
	conf.Write(tls.Bytes())
	if res.HTTP != nil {
		if err := writeFile(filepath.Join(opts.OutputDir, HTTPCatalogFile), res.HTTP.Bytes()); err != nil {
			return nil, err
		}
		conf.WriteString(opts.Separator + "\n")
		conf.Write(res.HTTP.Bytes())
	}

	res.ConfigPath = filepath.Join(opts.OutputDir, ConfigFile)
	if err := writeFile(res.ConfigPath, conf.Bytes()); err != nil {
		return nil, err
	}
	return res, nil
}

// writeFile writes via a temp file and rename so the engine never reads a
// half-written catalog.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Package cli provides helpers shared by partcli subcommands: exit codes,
// output destinations, and flag value parsing.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/partcli/internal/models"
)

// Process exit codes.
const (
	ExitOK     = 0
	ExitUsage  = 1
	ExitConfig = 2
	ExitData   = 3
)

// nopWriteCloser wraps a writer that must not be closed (stdout).
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// OpenOutput returns a writer for path. Empty or "-" means stdout, which the
// returned closer leaves open.
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

// ParseUUIDs parses a repeated flag's values into UUIDs.
func ParseUUIDs(values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", v, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// ResolveFolders converts folder flag values, each either a numeric ID or a
// folder name, into folder IDs. Unknown names are an error.
func ResolveFolders(values []string, folders models.FolderList) ([]uint32, error) {
	out := make([]uint32, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			out = append(out, uint32(n))
			continue
		}
		id, ok := folders.IDOf(v)
		if !ok {
			return nil, fmt.Errorf("unknown folder %q", v)
		}
		out = append(out, id)
	}
	return out, nil
}

// StringList is a repeatable flag value.
type StringList []string

// String joins the values for flag help output.
func (s *StringList) String() string { return strings.Join(*s, ",") }

// Set appends a value; comma-separated values are split.
func (s *StringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

package output

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
)

// ErrOutputDiffers is returned by [Output.Check] when a file in the output
// directory differs from the rendered output.
var ErrOutputDiffers = errors.New("output differs")

// Write writes every file into dir, creating it if needed. Other files in
// dir are left alone.
func (o *Output) Write(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, f := range o.files {
		//nolint:gosec // G306: policy sources are not secret.
		err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644)
		if err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}

	return nil
}

// Diff is the unified diff of one file.
type Diff struct {
	Name string
	Text string
}

// Check compares the output with the files in dir. It returns the diffs of
// every missing or changed file, and [ErrOutputDiffers] if there are any.
func (o *Output) Check(dir string) ([]Diff, error) {
	var diffs []Diff

	for _, f := range o.files {
		path := filepath.Join(dir, f.Name)

		//nolint:gosec // G304: Potential file inclusion via variable.
		current, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}

		if bytes.Equal(current, f.Data) {
			continue
		}

		diffs = append(diffs, Diff{
			Name: f.Name,
			Text: udiff.Unified(path, f.Name, string(current), string(f.Data)),
		})
	}

	if len(diffs) > 0 {
		return diffs, fmt.Errorf("%w: %d files", ErrOutputDiffers, len(diffs))
	}

	return nil, nil
}

// Print writes every file to w, each preceded by a `# name` header.
func (o *Output) Print(w io.Writer) error {
	for i, f := range o.files {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		}

		if _, err := fmt.Fprintf(w, "# %s\n", f.Name); err != nil {
			return fmt.Errorf("write output: %w", err)
		}

		if _, err := w.Write(f.Data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	return nil
}

package execctx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultMaxLines is the line budget applied to tool output before it is
	// spilled to disk and truncated for the LLM.
	DefaultMaxLines = 2000
	// DefaultMaxBytes is the byte budget applied alongside DefaultMaxLines.
	DefaultMaxBytes = 50 * 1024
)

// TruncateResult reports what a Truncator did to a piece of tool output.
type TruncateResult struct {
	Text        string
	Truncated   bool
	TotalLines  int
	TotalBytes  int
	SpillPath   string
}

// Truncator bounds tool output before it is handed back to the LLM,
// spilling the full content to disk when it exceeds its limits.
type Truncator struct {
	MaxLines int
	MaxBytes int
	SpillDir string
}

// NewTruncator returns a Truncator with the package defaults, spilling into
// dir (created lazily on first use).
func NewTruncator(dir string) *Truncator {
	return &Truncator{MaxLines: DefaultMaxLines, MaxBytes: DefaultMaxBytes, SpillDir: dir}
}

// Truncate applies the line/byte budget to output, spilling the untruncated
// original to a file named output_{callID}.txt under t.SpillDir when it is
// exceeded.
func (t *Truncator) Truncate(callID, output string) (TruncateResult, error) {
	lines := strings.Split(output, "\n")
	totalBytes := len(output)
	res := TruncateResult{
		Text:       output,
		TotalLines: len(lines),
		TotalBytes: totalBytes,
	}

	overLines := t.MaxLines > 0 && len(lines) > t.MaxLines
	overBytes := t.MaxBytes > 0 && totalBytes > t.MaxBytes
	if !overLines && !overBytes {
		return res, nil
	}

	spillPath, err := t.spill(callID, output)
	if err != nil {
		return res, err
	}

	keep := lines
	if overLines {
		keep = lines[:t.MaxLines]
	}
	kept := strings.Join(keep, "\n")
	if overBytes && len(kept) > t.MaxBytes {
		kept = kept[:t.MaxBytes]
	}

	footer := fmt.Sprintf("\n\n[output truncated: %d lines / %d bytes total, full output at %s]", res.TotalLines, res.TotalBytes, spillPath)
	res.Text = kept + footer
	res.Truncated = true
	res.SpillPath = spillPath
	return res, nil
}

func (t *Truncator) spill(callID, output string) (string, error) {
	dir := t.SpillDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create spill dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("output_%s.txt", callID))
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return "", fmt.Errorf("write spill file: %w", err)
	}
	return path, nil
}

// Package toolkit implements the tool registry and dispatcher: looking a
// tool up by name, validating its arguments, invoking it, and normalizing
// whatever it returns into a ToolResult.
package toolkit

import "time"

// Attachment is a piece of binary or structured data a tool wants to hand
// back alongside its text output (an image, a file, a data blob).
type Attachment struct {
	Kind string // "image", "file", "data"
	MIME string
	Name string
	Data []byte
}

// Result is the normalized return envelope from every tool dispatch.
type Result struct {
	Title       string
	Output      string
	Metadata    map[string]any
	Attachments []Attachment
	Error       string
	Timestamp   time.Time
}

// IsSuccess reports whether the dispatch completed without error.
func (r Result) IsSuccess() bool { return r.Error == "" }

func errorResult(title, msg string) Result {
	return Result{Title: title, Error: msg, Timestamp: time.Now()}
}

func successResult(title, output string) Result {
	return Result{Title: title, Output: output, Timestamp: time.Now()}
}

// Package execctx provides the per-tool-call capability object: permission
// gating, abort signaling, output truncation, and session-scoped state.
package execctx

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies the category of action a tool is requesting permission for.
type Kind string

const (
	KindRead     Kind = "read"
	KindWrite    Kind = "write"
	KindDelete   Kind = "delete"
	KindBash     Kind = "bash"
	KindNetwork  Kind = "network"
	KindWebFetch Kind = "webfetch"
	KindQuestion Kind = "question"
	KindExecute  Kind = "execute"
	KindTodo     Kind = "todo"
)

// Request describes a single permission check presented to a PermissionHandler.
type Request struct {
	Kind           Kind
	Patterns       []string
	AlwaysPatterns []string
	Metadata       map[string]any
	Description    string
}

// DeniedError is returned by a PermissionHandler when a Request is rejected.
// The dispatcher converts it into a ToolResult error rather than propagating
// it further.
type DeniedError struct {
	Kind   Kind
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("permission denied: %s", e.Kind)
	}
	return fmt.Sprintf("permission denied: %s (%s)", e.Kind, e.Reason)
}

// Handler evaluates a Request and allows or denies it.
type Handler interface {
	Ask(ctx context.Context, req Request) error
}

// AlwaysAllow grants every request unconditionally.
type AlwaysAllow struct{}

func (AlwaysAllow) Ask(context.Context, Request) error { return nil }

// AlwaysDeny rejects every request unconditionally.
type AlwaysDeny struct{ Reason string }

func (d AlwaysDeny) Ask(_ context.Context, req Request) error {
	return &DeniedError{Kind: req.Kind, Reason: d.Reason}
}

// AutoApprove grants a request when every one of its patterns matches a
// configured glob for that Kind. Each pattern that matches none is put to
// Fallback, which must grant it too; with a nil Fallback the request is
// denied. A request with no patterns is granted if the Kind has globs, and
// otherwise goes to Fallback (or is denied).
type AutoApprove struct {
	Allowed  map[Kind][]string
	Fallback Handler
}

func (a AutoApprove) Ask(ctx context.Context, req Request) error {
	globs := a.Allowed[req.Kind]
	for _, pattern := range req.Patterns {
		if matchesAny(globs, pattern) {
			continue
		}
		if a.Fallback != nil {
			if err := a.Fallback.Ask(ctx, req); err != nil {
				return err
			}
			continue
		}
		return &DeniedError{Kind: req.Kind, Reason: fmt.Sprintf("no auto-approve rule for %q", pattern)}
	}
	if len(req.Patterns) == 0 && len(globs) == 0 {
		if a.Fallback != nil {
			return a.Fallback.Ask(ctx, req)
		}
		return &DeniedError{Kind: req.Kind, Reason: "no auto-approve rule configured"}
	}
	return nil
}

func matchesAny(globs []string, value string) bool {
	for _, g := range globs {
		if ok, err := filepath.Match(g, value); err == nil && ok {
			return true
		}
		if strings.HasPrefix(value, strings.TrimSuffix(g, "*")) && strings.HasSuffix(g, "*") {
			return true
		}
	}
	return false
}

// AskFunc is invoked synchronously for each Request; it is the hook an
// interactive UI layer plugs a human prompt into.
type AskFunc func(ctx context.Context, req Request) (bool, error)

// Interactive defers every decision to an externally supplied AskFunc,
// falling back to denial if none is configured.
type Interactive struct {
	Prompt AskFunc
}

func (i Interactive) Ask(ctx context.Context, req Request) error {
	if i.Prompt == nil {
		return &DeniedError{Kind: req.Kind, Reason: "no interactive handler configured"}
	}
	allowed, err := i.Prompt(ctx, req)
	if err != nil {
		return err
	}
	if !allowed {
		return &DeniedError{Kind: req.Kind}
	}
	return nil
}

package execctx

import (
	"context"
	"errors"
	"testing"
)

func TestAlwaysAllowGrantsEverything(t *testing.T) {
	if err := (AlwaysAllow{}).Ask(context.Background(), Request{Kind: KindBash}); err != nil {
		t.Fatalf("got %v", err)
	}
}

func TestAlwaysDenyRejectsEverything(t *testing.T) {
	err := (AlwaysDeny{Reason: "no bash allowed"}).Ask(context.Background(), Request{Kind: KindBash})
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected a *DeniedError, got %v", err)
	}
	if denied.Reason != "no bash allowed" {
		t.Fatalf("got %q", denied.Reason)
	}
}

func TestAutoApproveMatchesGlobThenFallsThroughOnMismatch(t *testing.T) {
	approve := AutoApprove{
		Allowed:  map[Kind][]string{KindWrite: {"/workspace/*"}},
		Fallback: AlwaysDeny{Reason: "outside workspace"},
	}

	if err := approve.Ask(context.Background(), Request{Kind: KindWrite, Patterns: []string{"/workspace/out.txt"}}); err != nil {
		t.Fatalf("expected the matching pattern to be approved, got %v", err)
	}

	err := approve.Ask(context.Background(), Request{Kind: KindWrite, Patterns: []string{"/etc/passwd"}})
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Reason != "outside workspace" {
		t.Fatalf("expected the fallback denial to fire for a non-matching pattern, got %v", err)
	}
}

func TestAutoApproveDeniesWithoutFallbackOnMismatch(t *testing.T) {
	approve := AutoApprove{Allowed: map[Kind][]string{KindWrite: {"/workspace/*"}}}
	if err := approve.Ask(context.Background(), Request{Kind: KindWrite, Patterns: []string{"/etc/passwd"}}); err == nil {
		t.Fatalf("expected denial with no fallback configured")
	}
}

func TestInteractiveDefersToPrompt(t *testing.T) {
	allow := Interactive{Prompt: func(ctx context.Context, req Request) (bool, error) { return true, nil }}
	if err := allow.Ask(context.Background(), Request{Kind: KindDelete}); err != nil {
		t.Fatalf("got %v", err)
	}

	deny := Interactive{Prompt: func(ctx context.Context, req Request) (bool, error) { return false, nil }}
	if err := deny.Ask(context.Background(), Request{Kind: KindDelete}); err == nil {
		t.Fatalf("expected denial when the prompt rejects the request")
	}
}

func TestInteractiveWithNoPromptDenies(t *testing.T) {
	if err := (Interactive{}).Ask(context.Background(), Request{Kind: KindDelete}); err == nil {
		t.Fatalf("expected denial with no prompt configured")
	}
}

package identity

import (
	"context"
	"testing"
)

func TestStaticEmptyAllowlistPermitsNamedActors(t *testing.T) {
	ident := NewStatic(nil)

	ok, err := ident.CanResolveEscalations(context.Background(), "reviewer-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected named actor to be permitted with empty allowlist")
	}

	ok, err = ident.CanResolveEscalations(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected anonymous actor to be rejected")
	}
}

func TestStaticAllowlistRestrictsResolution(t *testing.T) {
	ident := NewStatic([]string{"supervisor-1", "supervisor-2"})

	ok, _ := ident.CanResolveEscalations(context.Background(), "supervisor-2")
	if !ok {
		t.Fatalf("expected listed supervisor to be permitted")
	}

	ok, _ = ident.CanResolveEscalations(context.Background(), "reviewer-1")
	if ok {
		t.Fatalf("expected unlisted actor to be rejected")
	}
}

package authcore

import (
	"context"
	"testing"
)

func TestClientContextCarriers(t *testing.T) {
	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "cli/1.0")

	if got := clientIPFromContext(ctx); got != "203.0.113.7" {
		t.Fatalf("clientIPFromContext = %q", got)
	}
	if got := userAgentFromContext(ctx); got != "cli/1.0" {
		t.Fatalf("userAgentFromContext = %q", got)
	}
	if got := clientIdentityFromContext(ctx); got != "203.0.113.7" {
		t.Fatalf("clientIdentityFromContext = %q", got)
	}
}

func TestClientContextDefaults(t *testing.T) {
	if got := clientIPFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty IP, got %q", got)
	}
	if got := clientIdentityFromContext(context.Background()); got != "unknown" {
		t.Fatalf("expected unknown identity, got %q", got)
	}
	if got := clientIPFromContext(nil); got != "" { //nolint:staticcheck
		t.Fatalf("nil context: got %q", got)
	}
}

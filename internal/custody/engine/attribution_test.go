package engine_test

import (
	"testing"

	"github.com/evidlock/custodyledger/internal/custody/engine"
)

func TestAttribution_Precedence(t *testing.T) {
	policy := engine.Attribution{Fallback: "unknown"}

	cases := []struct {
		name    string
		actor   string
		creator string
		want    string
	}{
		{name: "request actor wins", actor: "officer-lee", creator: "tech-1", want: "officer-lee"},
		{name: "creator when no actor", actor: "", creator: "tech-1", want: "tech-1"},
		{name: "fallback when both empty", actor: "", creator: "", want: "unknown"},
		{name: "actor wins over empty creator", actor: "officer-lee", creator: "", want: "officer-lee"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.Resolve(tc.actor, tc.creator); got != tc.want {
				t.Errorf("Resolve(%q, %q): got %q, want %q", tc.actor, tc.creator, got, tc.want)
			}
		})
	}
}

func TestAttribution_CustomFallback(t *testing.T) {
	policy := engine.Attribution{Fallback: "unattributed"}
	if got := policy.Resolve("", ""); got != "unattributed" {
		t.Errorf("Resolve: got %q, want %q", got, "unattributed")
	}
}

package ping

import (
	"testing"

	"jeev/pkg/unit/unittest"

	"github.com/google/go-cmp/cmp"
)

func TestPing(t *testing.T) {
	h := unittest.New(t, nil, Unit)
	h.Load("ping", nil)

	h.Say("general", "jake", "!ping", false)
	h.Say("general", "jake", "!ping me", false)
	h.Say("general", "finn", "please !ping", false)

	want := []string{"jake: pong!", "jake: pong!"}
	if diff := cmp.Diff(want, h.Host.Texts()); diff != "" {
		t.Fatalf("replies mismatch (-want +got):\n%s", diff)
	}
}

func TestWeatherNeedsTargeting(t *testing.T) {
	h := unittest.New(t, nil, Unit)
	h.Load("ping", nil)

	h.Say("general", "jake", "whats the weather", false)
	if got := h.Host.Texts(); len(got) != 0 {
		t.Fatalf("untargeted message got replies %v", got)
	}

	h.Say("general", "jake", "jeev: WHATS THE WEATHER today", true)
	want := []string{"jake: the weather is swell"}
	if diff := cmp.Diff(want, h.Host.Texts()); diff != "" {
		t.Fatalf("replies mismatch (-want +got):\n%s", diff)
	}
}

package periodic

import (
	"errors"
	"slices"
	"testing"

	"jeev/pkg/option"
	"jeev/pkg/unit/unittest"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestToggleAndAnnounce(t *testing.T) {
	h := unittest.New(t, nil, Unit)
	u := h.Load("periodic", map[string]any{"interval": "10ms", "text": "tick"})

	h.Say("general", "jake", "periodic", false)
	require.Equal(t, []string{"started"}, h.Host.Texts())

	h.Eventually(func() bool {
		return slices.Contains(h.Host.Texts(), "tick")
	})
	for _, sent := range h.Host.Sent() {
		require.Equal(t, "general", sent.Channel)
	}

	h.Say("general", "jake", "PERIODIC", false)
	texts := h.Host.Texts()
	require.Equal(t, "stopped", texts[len(texts)-1])

	h.Eventually(func() bool { return u.Tasks() == 0 })
}

func TestStfuUnloadsItself(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := unittest.New(t, nil, Unit)
	h.Load("periodic", map[string]any{"interval": "10ms"})

	h.Say("general", "jake", "periodic", false)
	h.Say("general", "jake", "stfu", false)

	h.Eventually(func() bool { return h.Registry.Len() == 0 })
	require.Contains(t, h.Host.Texts(), "shutting up forever!!!")

	before := len(h.Host.Texts())
	h.Say("general", "jake", "periodic", false)
	require.Len(t, h.Host.Texts(), before)
}

func TestIntervalMustBePositive(t *testing.T) {
	h := unittest.New(t, map[string]string{"JEEV_PERIODIC_INTERVAL": "0"}, Unit)

	_, err := h.Registry.Load(t.Context(), "periodic", nil)
	var cfgErr *option.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, []string{"must be positive"}, cfgErr.Messages("interval"))
}

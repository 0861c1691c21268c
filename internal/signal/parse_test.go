package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseValidSignal(t *testing.T) {
	raw := []byte(`{
		"symbol": "btcusdt",
		"action": "OPEN_LONG",
		"size": 0.5,
		"stop_loss": 95000,
		"take_profit": 110000,
		"confidence": 0.8,
		"reason": "breakout",
		"metadata": {"strategy": "momentum-v2"}
	}`)

	s, err := Parse(raw)
	assert.NoError(t, err)
	assert.Equal(t, "BTCUSDT", s.Symbol)
	assert.Equal(t, ActionOpenLong, s.Action)
	assert.Equal(t, 0.5, s.Size)
	assert.NotEmpty(t, s.ID, "missing id gets generated")
	assert.False(t, s.At.IsZero())
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"invalid json", `{"symbol":`},
		{"array root", `[{"symbol": "BTCUSDT", "action": "open_long"}]`},
		{"missing action", `{"symbol": "BTCUSDT"}`},
		{"unknown action", `{"symbol": "BTCUSDT", "action": "hold"}`},
		{"missing symbol", `{"action": "open_long"}`},
		{"negative size", `{"symbol": "BTCUSDT", "action": "open_long", "size": -1}`},
		{"confidence above one", `{"symbol": "BTCUSDT", "action": "open_long", "confidence": 2}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestActionHelpers(t *testing.T) {
	assert.True(t, ActionOpenLong.Entry())
	assert.True(t, ActionOpenShort.Entry())
	assert.False(t, ActionCloseLong.Entry())

	assert.True(t, ActionOpenLong.Long())
	assert.True(t, ActionCloseShort.Long())
	assert.False(t, ActionOpenShort.Long())
	assert.False(t, ActionCloseLong.Long())
}

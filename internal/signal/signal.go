// Package signal is the ingest boundary for strategy signals. External
// producers hand in raw JSON; everything past Parse is a validated struct.
package signal

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
)

func (a Action) Valid() bool {
	switch a {
	case ActionOpenLong, ActionOpenShort, ActionCloseLong, ActionCloseShort:
		return true
	}
	return false
}

// Entry reports whether the action opens or adds to a position.
func (a Action) Entry() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// Long reports the direction the action trades toward.
func (a Action) Long() bool {
	return a == ActionOpenLong || a == ActionCloseShort
}

// Signal is a single strategy instruction. Size and the exit overrides are
// optional; the bridge falls back to configured risk-based sizing when Size
// is zero.
type Signal struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Action     Action          `json:"action"`
	Size       float64         `json:"size,omitempty"`
	Price      float64         `json:"price,omitempty"`
	StopLoss   float64         `json:"stop_loss,omitempty"`
	TakeProfit float64         `json:"take_profit,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	At         time.Time       `json:"at,omitempty"`
}

// Normalize fills defaults after a successful Parse.
func (s *Signal) Normalize() {
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.Action = Action(strings.ToLower(strings.TrimSpace(string(s.Action))))
	if s.At.IsZero() {
		s.At = time.Now()
	}
}

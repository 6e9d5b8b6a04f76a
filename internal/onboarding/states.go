package onboarding

import (
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/types"
)

type State string

const (
	StateIdle              State = "idle"
	StateAwaitingBasicInfo State = "awaiting_basic_info"
	StateAwaitingLocation  State = "awaiting_location"
	StateAwaitingPairing   State = "awaiting_pairing"
)

// Step is the wizard step shown for the state, 0 when idle.
func (s State) Step() int {
	switch s {
	case StateAwaitingBasicInfo:
		return 1
	case StateAwaitingLocation:
		return 2
	case StateAwaitingPairing:
		return 3
	}
	return 0
}

type PairingPhase string

const (
	PhaseScanning   PairingPhase = "scanning"
	PhaseConnecting PairingPhase = "connecting"
	PhaseComplete   PairingPhase = "complete"
	PhaseFailed     PairingPhase = "failed"
)

// PairingAttempt is the most recent scan or handshake of a session.
type PairingAttempt struct {
	DeviceID string       `json:"device_id,omitempty"`
	Phase    PairingPhase `json:"phase"`
	Attempt  int          `json:"attempt,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// Status is the snapshot handed to the presentation layer. The draft itself
// stays inside the controller.
type Status struct {
	SessionID         string          `json:"session_id"`
	State             State           `json:"state"`
	Step              int             `json:"step"`
	Location          string          `json:"location,omitempty"`
	ScannedID         string          `json:"scanned_id,omitempty"`
	Pairing           *PairingAttempt `json:"pairing,omitempty"`
	AttemptsRemaining int             `json:"attempts_remaining"`
	Device            *types.Device   `json:"device,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

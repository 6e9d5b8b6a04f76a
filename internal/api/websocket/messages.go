package websocket

import (
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/onboarding"
	"github.com/KevinKickass/EcoShareCore/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Device record messages
	MessageTypeDeviceCreated MessageType = "device_created"
	MessageTypeDeviceUpdated MessageType = "device_updated"
	MessageTypeDeviceDeleted MessageType = "device_deleted"

	// Onboarding session messages
	MessageTypeOnboardingState MessageType = "onboarding_state"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"

	// Replies to client commands
	MessageTypeSubscribed MessageType = "subscribed"
	MessageTypePong       MessageType = "pong"
	MessageTypeError      MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	// session scopes onboarding messages for subscribed clients.
	session string
}

type OnboardingStateData struct {
	onboarding.Status
	Previous onboarding.State `json:"previous_state"`
}

type DeviceEventData struct {
	Device types.Device `json:"device"`
}

type SubscribedData struct {
	Sessions []string `json:"sessions"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewOnboardingStateMessage(status onboarding.Status, previous onboarding.State) Message {
	msg := NewMessage(MessageTypeOnboardingState, OnboardingStateData{
		Status:   status,
		Previous: previous,
	})
	msg.session = status.SessionID
	return msg
}

func NewDeviceMessage(msgType MessageType, device types.Device) Message {
	return NewMessage(msgType, DeviceEventData{Device: device})
}

func NewSystemStatusMessage(status any) Message {
	return NewMessage(MessageTypeSystemStatus, status)
}

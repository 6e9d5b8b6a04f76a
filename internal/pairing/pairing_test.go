package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap/zaptest"
)

func TestSimulatorPair(t *testing.T) {
	sim := NewSimulator(5 * time.Millisecond)
	sim.Reject("DEVICE_BAD")
	sim.RejectPrefix = "OFFLINE_"

	res, err := sim.Pair(context.Background(), "DEVICE_123456")
	if err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	if res.ConfirmedID != "DEVICE_123456" {
		t.Errorf("expected confirmed id DEVICE_123456, got %s", res.ConfirmedID)
	}

	for _, id := range []string{"DEVICE_BAD", "OFFLINE_42"} {
		_, err := sim.Pair(context.Background(), id)
		var failure *Failure
		if !errors.As(err, &failure) {
			t.Fatalf("%s: expected *Failure, got %v", id, err)
		}
		if failure.DeviceID != id || failure.Reason != "device unreachable" {
			t.Errorf("%s: unexpected failure %+v", id, failure)
		}
	}
}

func TestSimulatorPairCancelled(t *testing.T) {
	sim := NewSimulator(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sim.Pair(ctx, "DEVICE_123456"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSimulatorScan(t *testing.T) {
	sim := NewSimulator(0)
	sim.ScanLatency = time.Millisecond

	id, err := sim.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if id != DefaultScanResult {
		t.Errorf("expected %s, got %s", DefaultScanResult, id)
	}
}

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeBroker answers every pair request through the subscribed handler.
type fakeBroker struct {
	mu        sync.Mutex
	handler   mqtt.MessageHandler
	subTopic  string
	published []string
	reply     func(req pairRequest) *pairAck
}

func (b *fakeBroker) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	b.subTopic = topic
	b.handler = cb
	b.mu.Unlock()
	return &doneToken{}
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var req pairRequest
	_ = json.Unmarshal(payload.([]byte), &req)

	b.mu.Lock()
	b.published = append(b.published, topic)
	handler := b.handler
	b.mu.Unlock()

	if ack := b.reply(req); ack != nil {
		data, _ := json.Marshal(ack)
		go handler(nil, &fakeMessage{topic: topic + "/ack", payload: data})
	}
	return &doneToken{}
}

func (b *fakeBroker) Disconnect(uint) {}

func newTestMQTTPairer(t *testing.T, b *fakeBroker) *MQTTPairer {
	t.Helper()
	p, err := newMQTTPairer(b, config.MQTTConfig{TopicPrefix: "ecoshare/devices", QoS: 1, Timeout: time.Second}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newMQTTPairer failed: %v", err)
	}
	return p
}

func TestMQTTPairerSuccess(t *testing.T) {
	b := &fakeBroker{reply: func(req pairRequest) *pairAck {
		return &pairAck{RequestID: req.RequestID, OK: true, ConfirmedID: strings.ToLower(req.DeviceID)}
	}}
	p := newTestMQTTPairer(t, b)

	if b.subTopic != "ecoshare/devices/+/pair/ack" {
		t.Errorf("unexpected subscription %s", b.subTopic)
	}

	res, err := p.Pair(context.Background(), "DEVICE_1")
	if err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	if res.ConfirmedID != "device_1" {
		t.Errorf("expected confirmed id device_1, got %s", res.ConfirmedID)
	}
	if len(b.published) != 1 || b.published[0] != "ecoshare/devices/DEVICE_1/pair" {
		t.Errorf("unexpected publish topics %v", b.published)
	}
}

func TestMQTTPairerRejected(t *testing.T) {
	b := &fakeBroker{reply: func(req pairRequest) *pairAck {
		return &pairAck{RequestID: req.RequestID, OK: false, Reason: "busy"}
	}}
	p := newTestMQTTPairer(t, b)

	_, err := p.Pair(context.Background(), "DEVICE_1")
	var failure *Failure
	if !errors.As(err, &failure) || failure.Reason != "busy" {
		t.Fatalf("expected failure with reason busy, got %v", err)
	}
}

func TestMQTTPairerIgnoresForeignAck(t *testing.T) {
	b := &fakeBroker{reply: func(req pairRequest) *pairAck {
		return &pairAck{RequestID: "someone-else", OK: true}
	}}
	p := newTestMQTTPairer(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.Pair(ctx, "DEVICE_1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) != 0 {
		t.Errorf("expected no pending requests, got %d", len(p.pending))
	}
}

func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"DEVICE_123456", true},
		{"device-1.rev2", true},
		{"", false},
		{"a/b", false},
		{"x/+", false},
		{"dev+1", false},
		{"dev#", false},
		{"dev\x00", false},
	}

	for _, tt := range tests {
		err := ValidateDeviceID(tt.id)
		if tt.valid && err != nil {
			t.Errorf("ValidateDeviceID(%q) = %v, want nil", tt.id, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidDeviceID) {
			t.Errorf("ValidateDeviceID(%q) = %v, want ErrInvalidDeviceID", tt.id, err)
		}
	}
}

func TestMQTTPairerRejectsTopicCharacters(t *testing.T) {
	b := &fakeBroker{reply: func(req pairRequest) *pairAck {
		return &pairAck{RequestID: req.RequestID, OK: true}
	}}
	p := newTestMQTTPairer(t, b)

	for _, id := range []string{"a/b", "x/+", "all#"} {
		_, err := p.Pair(context.Background(), id)
		var failure *Failure
		if !errors.As(err, &failure) {
			t.Errorf("Pair(%q): expected failure, got %v", id, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) != 0 {
		t.Errorf("invalid ids reached the broker: %v", b.published)
	}
}

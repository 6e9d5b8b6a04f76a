package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/KevinKickass/EcoShareCore/internal/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type pairRequest struct {
	RequestID string `json:"request_id"`
	DeviceID  string `json:"device_id"`
}

type pairAck struct {
	RequestID   string `json:"request_id"`
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
	ConfirmedID string `json:"confirmed_id,omitempty"`
}

// mqttClient is the subset of mqtt.Client the pairer needs.
type mqttClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPairer asks a device to pair by publishing to <prefix>/<id>/pair and
// waits for the matching ack on <prefix>/<id>/pair/ack.
type MQTTPairer struct {
	client mqttClient
	prefix string
	qos    byte
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]chan pairAck
}

func NewMQTTPairer(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTPairer, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	p, err := newMQTTPairer(client, cfg, logger)
	if err != nil {
		client.Disconnect(250)
		return nil, err
	}

	logger.Info("MQTT pairer connected",
		zap.String("broker", cfg.Broker),
		zap.String("topic_prefix", cfg.TopicPrefix))

	return p, nil
}

func newMQTTPairer(client mqttClient, cfg config.MQTTConfig, logger *zap.Logger) (*MQTTPairer, error) {
	p := &MQTTPairer{
		client:  client,
		prefix:  cfg.TopicPrefix,
		qos:     cfg.QoS,
		logger:  logger,
		pending: make(map[string]chan pairAck),
	}

	token := client.Subscribe(p.prefix+"/+/pair/ack", p.qos, p.handleAck)
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt subscribe: %w", token.Error())
	}

	return p, nil
}

func (p *MQTTPairer) Pair(ctx context.Context, deviceID string) (Result, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return Result{}, &Failure{DeviceID: deviceID, Reason: err.Error()}
	}

	req := pairRequest{RequestID: uuid.NewString(), DeviceID: deviceID}
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal pair request: %w", err)
	}

	ch := make(chan pairAck, 1)
	p.mu.Lock()
	p.pending[req.RequestID] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, req.RequestID)
		p.mu.Unlock()
	}()

	token := p.client.Publish(p.requestTopic(deviceID), p.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return Result{}, &Failure{DeviceID: deviceID, Reason: fmt.Sprintf("publish failed: %v", err)}
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case ack := <-ch:
		if !ack.OK {
			reason := ack.Reason
			if reason == "" {
				reason = "device rejected pairing"
			}
			return Result{}, &Failure{DeviceID: deviceID, Reason: reason}
		}
		confirmed := ack.ConfirmedID
		if confirmed == "" {
			confirmed = deviceID
		}
		return Result{ConfirmedID: confirmed}, nil

	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *MQTTPairer) Close() {
	p.client.Disconnect(250)
}

func (p *MQTTPairer) handleAck(_ mqtt.Client, msg mqtt.Message) {
	var ack pairAck
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		p.logger.Warn("Discarding malformed pair ack",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
		return
	}

	p.mu.Lock()
	ch, ok := p.pending[ack.RequestID]
	p.mu.Unlock()

	if !ok {
		p.logger.Debug("Pair ack without pending request",
			zap.String("topic", msg.Topic()),
			zap.String("request_id", ack.RequestID))
		return
	}

	select {
	case ch <- ack:
	default:
	}
}

func (p *MQTTPairer) requestTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/pair", p.prefix, deviceID)
}

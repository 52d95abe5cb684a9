package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
)

// MessageType is the kind of a real-time feed message.
type MessageType string

const (
	MessageAlert        MessageType = "alert"
	MessageThreat       MessageType = "threat"
	MessageMetricUpdate MessageType = "metric_update"
	MessageStatusChange MessageType = "status_change"
	MessageSystem       MessageType = "system"
)

// Envelope wraps every message on the push transports. Data holds a single
// object or an array of them.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeEnvelope turns a raw push message into a batch. Only alert and
// threat messages carry pipeline data; the other known types yield an empty
// batch. Unknown types and malformed payloads are errors.
func DecodeEnvelope(raw []byte) (MessageType, ports.Batch, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", ports.Batch{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	var batch ports.Batch
	switch env.Type {
	case MessageAlert:
		alerts, err := decodeOneOrMany[domain.Alert](env.Data)
		if err != nil {
			return env.Type, batch, fmt.Errorf("failed to decode alert payload: %w", err)
		}
		batch.Alerts = alerts
	case MessageThreat:
		sims, err := decodeOneOrMany[domain.ThreatSimulation](env.Data)
		if err != nil {
			return env.Type, batch, fmt.Errorf("failed to decode threat payload: %w", err)
		}
		batch.Simulations = sims
	case MessageMetricUpdate, MessageStatusChange, MessageSystem:
	default:
		return env.Type, batch, fmt.Errorf("unknown message type %q", env.Type)
	}
	return env.Type, batch, nil
}

func decodeOneOrMany[T any](data json.RawMessage) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// EncodeEnvelope wraps data for the push transports.
func EncodeEnvelope(msgType MessageType, data interface{}, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: payload, Timestamp: at.UTC()})
}

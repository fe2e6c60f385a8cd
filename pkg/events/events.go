// Package events defines the engine's event surface. Off-engine indexers
// consume these to reconstruct claim-eligibility state for clients.
package events

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// Type identifies what happened.
type Type string

const (
	TypeDistributionCreated   Type = "distribution.created"
	TypeDistributionUpdated   Type = "distribution.updated"
	TypeDistributionActiveSet Type = "distribution.active_set"
	TypeDistributionRecovered Type = "distribution.recovered"
	TypeClaimAccepted         Type = "claim.accepted"
)

// Event is one emitted record. Fields that don't apply to a given type are
// left at their zero values.
type Event struct {
	ID             string         `json:"id"`
	Type           Type           `json:"type"`
	Timestamp      int64          `json:"timestamp"`
	DistributionID uint64         `json:"distribution_id"`
	Root           common.Hash    `json:"root,omitempty"`
	Asset          types.AssetID  `json:"asset,omitempty"`
	Amount         *big.Int       `json:"amount,omitempty"`
	Claimant       common.Address `json:"claimant,omitempty"`
	Active         bool           `json:"active,omitempty"`
	StartTime      int64          `json:"start_time,omitempty"`
	EndTime        int64          `json:"end_time,omitempty"`
}

// New builds an event envelope with a fresh id.
func New(eventType Type, timestamp int64) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: timestamp,
	}
}

// Sink receives emitted events. Implementations must not block the engine:
// emission happens inside the claim critical section.
type Sink interface {
	Emit(event Event)
}

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs each event at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(event Event) {
	fields := []interface{}{
		"event_id", event.ID,
		"type", string(event.Type),
		"timestamp", event.Timestamp,
		"distribution_id", event.DistributionID,
	}
	if event.Amount != nil {
		fields = append(fields, "amount", event.Amount.String())
	}
	if event.Claimant != (common.Address{}) {
		fields = append(fields, "claimant", event.Claimant.Hex())
	}
	if event.Asset != "" {
		fields = append(fields, "asset", event.Asset.String())
	}
	s.logger.Sugar().Infow("distribution event", fields...)
}

// CaptureSink records events in memory for tests.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

// NewCaptureSink creates an empty capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

func (s *CaptureSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a snapshot of everything captured so far.
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns captured events of one type, in emission order.
func (s *CaptureSink) OfType(eventType Type) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (s MultiSink) Emit(event Event) {
	for _, sink := range s {
		sink.Emit(event)
	}
}

// Package adapters joins local stores with the assistant so that the memory
// and sqlite backends answer the same ports as the remote one.
package adapters

import (
	"context"

	"dompet/internal/assistant"
	"dompet/internal/core"
	"dompet/internal/ports"
)

// Local serves transactions from a local store and AI responses from the
// assistant service.
type Local struct {
	ports.Transactions
	assistant *assistant.Service
	ping      func(ctx context.Context) error
}

// NewLocal wires tx and svc. ping may be nil for stores that are always up.
func NewLocal(tx ports.Transactions, svc *assistant.Service, ping func(ctx context.Context) error) *Local {
	return &Local{
		Transactions: tx,
		assistant:    svc,
		ping:         ping,
	}
}

// ListAIResponses implements ports.AIResponseLister
func (l *Local) ListAIResponses(ctx context.Context) ([]core.AIResponse, error) {
	return l.assistant.ListAIResponses(ctx)
}

// CreateAIResponse implements ports.AIResponseCreator by generating a fresh
// daily insight.
func (l *Local) CreateAIResponse(ctx context.Context) (core.AIResponse, error) {
	return l.assistant.CreateAIResponse(ctx)
}

func (l *Local) Ping(ctx context.Context) error {
	if l.ping == nil {
		return nil
	}
	return l.ping(ctx)
}

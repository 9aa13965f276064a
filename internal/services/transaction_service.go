package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dompet/internal/amqp"
	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/ports"
)

// VersionedStore is the local store behind the service. Every write reports
// the row version it produced so the export message can carry it.
type VersionedStore interface {
	ports.TransactionLister
	ports.TransactionGetter
	CreateVersioned(ctx context.Context, t core.Transaction) (int64, core.Transaction, error)
	UpdateVersioned(ctx context.Context, t core.Transaction) (int64, core.Transaction, error)
	DeleteVersioned(ctx context.Context, id string) (int64, error)
	RecentTransactions(ctx context.Context, since time.Time) ([]core.Transaction, error)
	ListAIResponses(ctx context.Context) ([]core.AIResponse, error)
	SaveAIResponse(ctx context.Context, a core.AIResponse) (core.AIResponse, error)
	Ping(ctx context.Context) error
	Close() error
}

// Publisher announces changed transactions to the export worker.
type Publisher interface {
	PublishTransactionSync(ctx context.Context, msg *amqp.TransactionSyncMessage) error
	Close() error
}

// TransactionService saves transactions locally and then announces the change.
// A failed publish never fails the write: the row stays pending and the
// worker's sweep picks it up.
type TransactionService struct {
	store     VersionedStore
	publisher Publisher
	logger    *log.StructuredLogger
}

var _ ports.Transactions = (*TransactionService)(nil)

// NewTransactionService wires store and publisher. publisher may be nil, in
// which case changes are only picked up by the sweep.
func NewTransactionService(store VersionedStore, publisher Publisher, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &TransactionService{
		store:     store,
		publisher: publisher,
		logger:    log.NewStructuredLogger(logger.WithComponent(log.ComponentTransaction)),
	}
}

func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	version, saved, err := s.store.CreateVersioned(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.logger.LogTransactionSaved(ctx, log.OpCreate, saved.ID, string(saved.Type), saved.Amount.Amount)
	s.publish(ctx, saved.ID, version, amqp.OpUpsert)
	return saved, nil
}

func (s *TransactionService) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	version, saved, err := s.store.UpdateVersioned(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.logger.LogTransactionSaved(ctx, log.OpUpdate, saved.ID, string(saved.Type), saved.Amount.Amount)
	s.publish(ctx, saved.ID, version, amqp.OpUpsert)
	return saved, nil
}

func (s *TransactionService) Delete(ctx context.Context, id string) error {
	version, err := s.store.DeleteVersioned(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publish(ctx, id, version, amqp.OpDelete)
	return nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, typ core.TransactionType, page int) (core.TransactionPage, error) {
	return s.store.ListTransactions(ctx, typ, page)
}

// RecentTransactions feeds the assistant's daily prompt.
func (s *TransactionService) RecentTransactions(ctx context.Context, since time.Time) ([]core.Transaction, error) {
	return s.store.RecentTransactions(ctx, since)
}

func (s *TransactionService) ListAIResponses(ctx context.Context) ([]core.AIResponse, error) {
	return s.store.ListAIResponses(ctx)
}

func (s *TransactionService) SaveAIResponse(ctx context.Context, a core.AIResponse) (core.AIResponse, error) {
	return s.store.SaveAIResponse(ctx, a)
}

func (s *TransactionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *TransactionService) publish(ctx context.Context, id string, version int64, op amqp.Op) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewTransactionSyncMessage(id, version, op)
	if err := s.publisher.PublishTransactionSync(ctx, msg); err != nil {
		s.logger.LogError(ctx, "Failed to publish sync message", err, log.ComponentAMQP, log.OpSync,
			log.LogFields{log.FieldTransactionID: id, log.FieldVersion: version})
	}
}

// Close closes both the store and the publisher.
func (s *TransactionService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}

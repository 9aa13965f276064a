package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dompet/internal/amqp"
	"dompet/internal/core"
	"dompet/internal/ports"
	"dompet/internal/storage"
)

type fakePublisher struct {
	mu     sync.Mutex
	msgs   []*amqp.TransactionSyncMessage
	err    error
	closed bool
}

func (f *fakePublisher) PublishTransactionSync(_ context.Context, msg *amqp.TransactionSyncMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "dompet.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestTransactionService_PublishesVersions(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := NewTransactionService(newTestStore(t), pub, nil)

	created, err := svc.Create(ctx, core.Transaction{
		Type:        core.Expense,
		Amount:      core.Money{Amount: 25000},
		Description: "Makan siang",
		Date:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	created.Amount = core.Money{Amount: 30000}
	if _, err := svc.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []struct {
		version int64
		op      amqp.Op
	}{{1, amqp.OpUpsert}, {2, amqp.OpUpsert}, {3, amqp.OpDelete}}
	if len(pub.msgs) != len(want) {
		t.Fatalf("published %d messages, want %d", len(pub.msgs), len(want))
	}
	for i, w := range want {
		m := pub.msgs[i]
		if m.ID != created.ID || m.Version != w.version || m.Op != w.op {
			t.Errorf("message %d = %+v, want id %s version %d op %s", i, m, created.ID, w.version, w.op)
		}
	}

	if _, err := svc.GetTransaction(ctx, created.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetTransaction after delete: got %v, want ErrNotFound", err)
	}
}

func TestTransactionService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: amqp.ErrCircuitOpen}
	store := newTestStore(t)
	svc := NewTransactionService(store, pub, nil)

	created, err := svc.Create(ctx, core.Transaction{Type: core.Income, Amount: core.Money{Amount: 1}, Description: "Bonus"})
	if err != nil {
		t.Fatalf("Create should succeed when publishing fails: %v", err)
	}

	pending, err := store.GetPendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSync: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != created.ID {
		t.Errorf("row should stay pending for the sweep, got %+v", pending)
	}
}

func TestTransactionService_ValidationAndNilPublisher(t *testing.T) {
	svc := NewTransactionService(newTestStore(t), nil, nil)

	_, err := svc.Create(context.Background(), core.Transaction{Type: core.Expense, Amount: core.Money{Amount: 0}, Description: "x"})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	if err := svc.Delete(context.Background(), "99"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionService_Close(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		svc := &TransactionService{}
		if err := svc.Close(); err != nil {
			t.Fatalf("Close should not return error with nil components: %v", err)
		}
	})

	t.Run("closes publisher", func(t *testing.T) {
		pub := &fakePublisher{}
		svc := NewTransactionService(newTestStore(t), pub, nil)
		if err := svc.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if !pub.closed {
			t.Error("publisher was not closed")
		}
	})
}

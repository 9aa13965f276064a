package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dompet/internal/core"
	"dompet/internal/ports"
)

// SeedFile is the name of the optional seed file read by NewFromFiles.
const SeedFile = "seed_transactions.txt"

// Store keeps transactions and AI responses in process memory.
type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	items   []core.Transaction
	answers []core.AIResponse
}

func New(seed ...core.Transaction) *Store {
	s := &Store{now: time.Now}
	for _, t := range seed {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		s.items = append(s.items, t)
	}
	return s
}

// NewFromFiles seeds the store from base/seed_transactions.txt. Each line is
// "YYYY-MM-DD|type|amount|description"; blank lines and '#' comments are
// skipped, malformed lines are ignored.
func NewFromFiles(base string) *Store {
	var seed []core.Transaction
	for _, line := range readLines(filepath.Join(base, SeedFile)) {
		t, err := parseSeedLine(line)
		if err != nil {
			continue
		}
		seed = append(seed, t)
	}
	return New(seed...)
}

// WithClock replaces the time source used to stamp new records.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Create(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if t.Date.IsZero() {
		t.Date = s.now()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
	return t, nil
}

func (s *Store) Update(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(t.ID)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, ports.ErrNotFound)
	}
	cur := s.items[i]
	cur.Type = t.Type
	cur.Amount = t.Amount
	cur.Description = t.Description
	if err := cur.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.items[i] = cur
	return cur, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	return s.items[i], nil
}

// ListTransactions returns one page of the given type, newest first. An
// empty type lists every transaction.
func (s *Store) ListTransactions(_ context.Context, typ core.TransactionType, page int) (core.TransactionPage, error) {
	page = ports.NormalizePage(page)
	s.mu.Lock()
	var matched []core.Transaction
	for i := len(s.items) - 1; i >= 0; i-- {
		if typ == "" || s.items[i].Type == typ {
			matched = append(matched, s.items[i])
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})

	out := core.TransactionPage{Type: typ, Page: page, TotalPages: ports.TotalPages(len(matched))}
	start := (page - 1) * ports.PageSize
	if start < len(matched) {
		end := min(start+ports.PageSize, len(matched))
		out.Items = matched[start:end]
	}
	return out, nil
}

// RecentTransactions returns every transaction dated at or after since.
func (s *Store) RecentTransactions(_ context.Context, since time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.items {
		if !t.Date.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListAIResponses(_ context.Context) ([]core.AIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.AIResponse(nil), s.answers...), nil
}

// SaveAIResponse stores a generated response and assigns its id.
func (s *Store) SaveAIResponse(_ context.Context, a core.AIResponse) (core.AIResponse, error) {
	if a.Date.IsZero() {
		a.Date = s.now()
	}
	if err := a.Validate(); err != nil {
		return core.AIResponse{}, err
	}
	a.ID = uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, a)
	return a, nil
}

func (s *Store) find(id string) int {
	for i, t := range s.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func parseSeedLine(line string) (core.Transaction, error) {
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return core.Transaction{}, fmt.Errorf("want 4 fields, got %d", len(parts))
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(parts[0]))
	if err != nil {
		return core.Transaction{}, err
	}
	typ, err := core.ParseTransactionType(parts[1])
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseRupiah(parts[2])
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		Type:        typ,
		Amount:      core.Money{Amount: amount},
		Description: strings.TrimSpace(parts[3]),
		Date:        date,
	}
	return t, t.Validate()
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

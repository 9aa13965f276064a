package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dompet/internal/core"
)

// TransactionSource lists transactions dated at or after since.
type TransactionSource interface {
	RecentTransactions(ctx context.Context, since time.Time) ([]core.Transaction, error)
}

// Store persists generated responses.
type Store interface {
	ListAIResponses(ctx context.Context) ([]core.AIResponse, error)
	SaveAIResponse(ctx context.Context, a core.AIResponse) (core.AIResponse, error)
}

// Service serves the AI response ports for backends that generate
// responses locally.
type Service struct {
	source   TransactionSource
	store    Store
	gen      Generator
	fallback Generator
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

// WithFallback sets the generator used when the primary one fails.
func WithFallback(g Generator) Option {
	return func(s *Service) { s.fallback = g }
}

// WithLocation sets the timezone that defines "today" and "this month".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(source TransactionSource, store Store, gen Generator, opts ...Option) *Service {
	s := &Service{
		source: source,
		store:  store,
		gen:    gen,
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = StaticGenerator{}
	}
	return s
}

func (s *Service) ListAIResponses(ctx context.Context) ([]core.AIResponse, error) {
	return s.store.ListAIResponses(ctx)
}

// CreateAIResponse implements ports.AIResponseCreator.
func (s *Service) CreateAIResponse(ctx context.Context) (core.AIResponse, error) {
	return s.CreateDaily(ctx)
}

// CreateDaily generates and stores a response about today and this month.
func (s *Service) CreateDaily(ctx context.Context) (core.AIResponse, error) {
	now := s.now().In(s.loc)
	items, err := s.source.RecentTransactions(ctx, MonthStart(now))
	if err != nil {
		return core.AIResponse{}, fmt.Errorf("load transactions: %w", err)
	}

	prompt := BuildPrompt(items, now)
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		if s.fallback == nil {
			return core.AIResponse{}, fmt.Errorf("generate response: %w", err)
		}
		s.logger.WarnContext(ctx, "Generator failed, using fallback", "error", err)
		if text, err = s.fallback.Generate(ctx, prompt); err != nil {
			return core.AIResponse{}, fmt.Errorf("generate fallback response: %w", err)
		}
	}

	saved, err := s.store.SaveAIResponse(ctx, core.AIResponse{Message: text, Date: now.UTC()})
	if err != nil {
		return core.AIResponse{}, fmt.Errorf("save response: %w", err)
	}
	s.logger.InfoContext(ctx, "AI response created",
		"id", saved.ID,
		"month_count", prompt.Month.Count,
		"length", len(text))
	return saved, nil
}

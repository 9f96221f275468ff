package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/ytmp3/ytmp3/internal/logging"
)

// History records conversion outcomes. Implementations never fail the
// caller: storage errors are logged and swallowed.
type History interface {
	Start(ctx context.Context, url string) *Conversion
	Complete(ctx context.Context, c *Conversion, filename string)
	Fail(ctx context.Context, c *Conversion, err error)
	Recent(ctx context.Context, limit int) ([]*Conversion, error)
}

// Service is the History backed by a Repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, logger: logging.WithComponent(logger, "history"), now: time.Now}
}

// Start inserts a running record. The returned value is always non-nil so the
// caller can pass it to Complete or Fail unconditionally.
func (s *Service) Start(ctx context.Context, url string) *Conversion {
	now := s.now()
	c := &Conversion{
		ID:        NewID(),
		URL:       url,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversion(ctx, c); err != nil {
		s.logger.Warn("failed to record conversion start", "conversion_id", c.ID, "error", err)
	}
	return c
}

func (s *Service) Complete(ctx context.Context, c *Conversion, filename string) {
	s.finish(ctx, c, StatusCompleted, filename, "")
}

func (s *Service) Fail(ctx context.Context, c *Conversion, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.finish(ctx, c, StatusFailed, "", msg)
}

func (s *Service) finish(ctx context.Context, c *Conversion, status, filename, errMsg string) {
	if c == nil {
		return
	}
	now := s.now()
	elapsed := now.Sub(c.CreatedAt)

	c.Status = status
	c.Filename = filename
	c.Error = errMsg
	c.DurationMS = elapsed.Milliseconds()
	c.UpdatedAt = now

	if err := s.repo.UpdateConversionStatus(ctx, c.ID, status, filename, errMsg, elapsed); err != nil {
		s.logger.Warn("failed to record conversion outcome",
			"conversion_id", c.ID,
			"status", status,
			"error", err,
		)
	}
}

func (s *Service) Recent(ctx context.Context, limit int) ([]*Conversion, error) {
	return s.repo.ListConversions(ctx, limit)
}

// Disabled is the History used when HISTORY_ENABLED is false.
type Disabled struct{}

func (Disabled) Start(_ context.Context, url string) *Conversion {
	return &Conversion{URL: url, Status: StatusRunning}
}

func (Disabled) Complete(context.Context, *Conversion, string) {}

func (Disabled) Fail(context.Context, *Conversion, error) {}

func (Disabled) Recent(context.Context, int) ([]*Conversion, error) {
	return []*Conversion{}, nil
}

package feedback

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/feedback"
)

type Service struct {
	Repo  domain.Repository
	Clock application.Clock
}

// Submit stores one feedback entry; blank text is rejected.
func (s *Service) Submit(ctx context.Context, kind, text string) (domain.Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Entry{}, analysis.Invalid("text", "feedback text is required")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "general"
	}
	e := domain.Entry{
		ID:        uuid.NewString(),
		Type:      kind,
		Text:      text,
		Timestamp: s.Clock.Now().UTC(),
	}
	if err := s.Repo.Append(ctx, e); err != nil {
		return domain.Entry{}, err
	}
	return e, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Entry, error) {
	return s.Repo.List(ctx)
}

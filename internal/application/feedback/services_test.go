package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	infra "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/feedback"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestSubmit(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &Service{Repo: infra.NewFileRepository(afero.NewMemMapFs(), "fb.json"), Clock: fixedClock{now}}

	e, err := svc.Submit(context.Background(), "", "  great tool ")
	require.NoError(t, err)
	assert.Equal(t, "general", e.Type)
	assert.Equal(t, "great tool", e.Text)
	assert.Equal(t, now, e.Timestamp)
	assert.NotEmpty(t, e.ID)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmitBlankIsValidationError(t *testing.T) {
	svc := &Service{Repo: infra.NewFileRepository(afero.NewMemMapFs(), "fb.json"), Clock: fixedClock{}}
	_, err := svc.Submit(context.Background(), "issue", "   ")
	assert.True(t, analysis.IsValidation(err))
}

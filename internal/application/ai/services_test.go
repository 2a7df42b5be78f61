package ai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domai "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/ai"
)

type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	calls   []call
}

type call struct {
	system string
	parts  []domai.Part
	hasDL  bool
}

func (c *scriptedClient) Complete(ctx context.Context, system string, parts ...domai.Part) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := ctx.Deadline()
	c.calls = append(c.calls, call{system: system, parts: parts, hasDL: ok})
	i := len(c.calls) - 1
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	return c.replies[i], nil
}

func TestDescribeImageSendsImagePart(t *testing.T) {
	c := &scriptedClient{replies: []string{"  VM, storage \n"}}
	svc := NewService(c, 2, time.Minute, zaptest.NewLogger(t))

	out, err := svc.DescribeImage(context.Background(), "https://blob/img.png")
	require.NoError(t, err)
	assert.Equal(t, "VM, storage", out)

	require.Len(t, c.calls, 1)
	assert.True(t, c.calls[0].hasDL)
	require.Len(t, c.calls[0].parts, 2)
	assert.Equal(t, "https://blob/img.png", c.calls[0].parts[1].ImageURL)
}

func TestGenerateTemplatesRetriesUntilShapeMatches(t *testing.T) {
	good := `[{"name":"n","description":"d","bicepTemplate":"b","armTemplate":"{}"}]`
	c := &scriptedClient{replies: []string{"sorry, here you go:", `{"name":"only"}`, good}}
	svc := NewService(c, 2, 0, nil)

	out, err := svc.GenerateTemplates(context.Background(), "VM, storage")
	require.NoError(t, err)
	assert.Equal(t, good, out)
	assert.Len(t, c.calls, 3)
	assert.Equal(t, "Please provide a template for: VM, storage", c.calls[0].parts[0].Text)
}

func TestExplainArchitecturePrompt(t *testing.T) {
	c := &scriptedClient{replies: []string{"# Architectures"}}
	svc := NewService(c, 2, 0, nil)

	out, err := svc.ExplainArchitecture(context.Background(), "VM, storage")
	require.NoError(t, err)
	assert.Equal(t, "# Architectures", out)
	assert.Contains(t, c.calls[0].parts[0].Text, "VM, storage")
	assert.Contains(t, c.calls[0].system, "IT Architect")
}

package ai

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/ai"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/ai/prompt"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/metrics"
)

// Service wraps the completion client with the fixed prompts of each workflow step.
type Service struct {
	client     ai.Client
	maxRetries int
	timeout    time.Duration
	log        *zap.Logger
}

func NewService(client ai.Client, maxRetries int, timeout time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, maxRetries: maxRetries, timeout: timeout, log: log}
}

func (s *Service) call(ctx context.Context, kind, system string, parts ...ai.Part) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.client.Complete(ctx, system, parts...)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.CompletionCalls.WithLabelValues(kind, outcome).Inc()
	return out, err
}

// DescribeImage returns the raw completion listing resources seen in the image.
func (s *Service) DescribeImage(ctx context.Context, imageURL string) (string, error) {
	out, err := s.call(ctx, "describe", prompt.DescribeImageSystem(),
		ai.Text(prompt.DescribeImageUser()), ai.Image(imageURL))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ExplainArchitecture returns markdown about architectures built from components.
func (s *Service) ExplainArchitecture(ctx context.Context, components string) (string, error) {
	return s.call(ctx, "architecture", prompt.ArchitectureSystem(), ai.Text(prompt.ArchitectureUser(components)))
}

// GenerateTemplates retries until the completion holds a template bundle.
// The result may still be invalid once retries are exhausted.
func (s *Service) GenerateTemplates(ctx context.Context, components string) (string, error) {
	attempts := 0
	op := func(ctx context.Context) (string, error) {
		attempts++
		if attempts > 1 {
			metrics.CompletionRetries.WithLabelValues("template").Inc()
		}
		return s.call(ctx, "template", prompt.TemplateSystem(), ai.Text(prompt.TemplateUser(components)))
	}
	return RetryUntilValid(ctx, op, prompt.ValidTemplateResponse, s.maxRetries,
		s.log.With(zap.String("step", "template")))
}

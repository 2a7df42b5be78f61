package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

// Registry commits template files into a GitHub repository.
type Registry struct {
	client *github.Client
	owner  string
	repo   string
}

// New builds a token-authenticated client. baseURL is only set for GitHub Enterprise or tests.
func New(owner, repo, token, baseURL string) (*Registry, error) {
	c := github.NewClient(nil)
	if token != "" {
		c = c.WithAuthToken(token)
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		c.BaseURL = u
	}
	return &Registry{client: c, owner: owner, repo: repo}, nil
}

// BranchHead returns the commit sha at the tip of branch.
func (r *Registry) BranchHead(ctx context.Context, branch string) (string, error) {
	b, _, err := r.client.Repositories.GetBranch(ctx, r.owner, r.repo, branch, 1)
	if err != nil {
		return "", describe("get branch "+branch, err)
	}
	sha := b.GetCommit().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("branch %s has no head commit", branch)
	}
	return sha, nil
}

// CreateFile adds a new file. Existing paths are rejected by GitHub since no blob sha is sent.
func (r *Registry) CreateFile(ctx context.Context, c domain.FileCommit) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(c.Message),
		Content: c.Content,
		Branch:  github.Ptr(c.Branch),
	}
	if _, _, err := r.client.Repositories.CreateFile(ctx, r.owner, r.repo, c.Path, opts); err != nil {
		return describe("create "+c.Path, err)
	}
	return nil
}

// describe keeps GitHub's own message so callers can show it.
func describe(op string, err error) error {
	var ge *github.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		return fmt.Errorf("github %s: %d %s: %w", op, ge.Response.StatusCode, ge.Message, err)
	}
	return fmt.Errorf("github %s: %w", op, err)
}

package ai

import "context"

// Part is one piece of user content: either text or an image reference.
type Part struct {
	Text     string
	ImageURL string
}

func Text(s string) Part { return Part{Text: s} }

func Image(url string) Part { return Part{ImageURL: url} }

// Client returns the final message text of a single completion.
type Client interface {
	Complete(ctx context.Context, system string, parts ...Part) (string, error)
}

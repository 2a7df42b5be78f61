package ai

import (
	"context"

	"go.uber.org/zap"
)

// RetryUntilValid runs op up to maxRetries+1 times until valid accepts its text.
//
// When the budget runs out the outcome of the last attempt decides: its text is
// returned even if invalid, or its error if it failed. Errors in earlier
// attempts count as failed attempts and are swallowed.
func RetryUntilValid(
	ctx context.Context,
	op func(context.Context) (string, error),
	valid func(string) bool,
	maxRetries int,
	log *zap.Logger,
) (string, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		text string
		err  error
	)
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			if cerr := ctx.Err(); cerr != nil {
				return text, cerr
			}
		}
		text, err = op(ctx)
		if err == nil && valid(text) {
			return text, nil
		}
		if err != nil {
			log.Warn("attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			log.Warn("attempt returned invalid text", zap.Int("attempt", attempt), zap.Int("length", len(text)))
		}
	}
	if err != nil {
		return "", err
	}
	log.Warn("retries exhausted, returning last result", zap.Int("attempts", maxRetries+1))
	return text, nil
}

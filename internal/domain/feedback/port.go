package feedback

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
}

package analysis

import (
	"context"
	"io"
	"time"
)

// Repository port (interface untuk persistence)
type Repository interface {
	// Get returns (nil, nil) when no record exists.
	Get(ctx context.Context, id string) (*Record, error)
	Upsert(ctx context.Context, id string, cs ChangeSet) error
	Delete(ctx context.Context, id string) (bool, error)
}

// VersionedStore is the compare-and-set primitive the backends implement.
// MergeUpsert builds Repository.Upsert on top of it.
type VersionedStore interface {
	Load(ctx context.Context, id string) (*Record, error)
	// Insert returns conflict=true when a record with the same id already exists.
	Insert(ctx context.Context, r *Record) (conflict bool, err error)
	// Update writes r only if the stored version still equals expected.
	Update(ctx context.Context, r *Record, expected int64) (ok bool, err error)
	Remove(ctx context.Context, id string) (bool, error)
}

// BlobStore port (penyimpanan gambar, template, zip)
type BlobStore interface {
	Save(ctx context.Context, container, name string, r io.Reader, size int64, contentType string) error
	SignedURL(ctx context.Context, container, name string, expiry time.Duration) (string, error)
	Fetch(ctx context.Context, link string) ([]byte, error)
}

// FileCommit is one new file pushed to the template registry.
type FileCommit struct {
	Path    string
	Content []byte
	Branch  string
	Message string
	BaseSHA string
}

// Registry port (publish template ke repo git)
type Registry interface {
	BranchHead(ctx context.Context, branch string) (string, error)
	CreateFile(ctx context.Context, c FileCommit) error
}

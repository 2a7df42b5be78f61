package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxPresignExpiry is the longest lifetime a SigV4 presigned URL may carry.
const MaxPresignExpiry = 7 * 24 * time.Hour

const maxFetchBytes = 10 << 20

type Store struct {
	client *minio.Client
	region string
	http   *http.Client

	mu      sync.Mutex
	buckets map[string]bool
}

// New buat koneksi MinIO
func New(endpoint, region, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		client:  cli,
		region:  region,
		http:    &http.Client{Timeout: 30 * time.Second},
		buckets: make(map[string]bool),
	}, nil
}

// ensureBucket: pastikan bucket ada (sekali per container)
func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.buckets[bucket] = true
	return nil
}

func (s *Store) Save(ctx context.Context, container, name string, r io.Reader, size int64, contentType string) error {
	if err := s.ensureBucket(ctx, container); err != nil {
		return fmt.Errorf("bucket %s: %w", container, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, container, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", container, name, err)
	}
	return nil
}

// SignedURL returns a presigned GET link. Longer expiries are clamped to MaxPresignExpiry.
func (s *Store) SignedURL(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, container, name, ClampExpiry(expiry), url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", container, name, err)
	}
	return u.String(), nil
}

func ClampExpiry(d time.Duration) time.Duration {
	if d <= 0 || d > MaxPresignExpiry {
		return MaxPresignExpiry
	}
	return d
}

// Fetch downloads a link. Links on this store's endpoint are read through the
// SDK (works for expired presigned URLs too); other links use a plain GET.
func (s *Store) Fetch(ctx context.Context, link string) ([]byte, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parse link: %w", err)
	}
	if bucket, object, ok := s.ownObject(u); ok {
		obj, err := s.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("get %s/%s: %w", bucket, object, err)
		}
		defer obj.Close()
		return io.ReadAll(io.LimitReader(obj, maxFetchBytes))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", u.Redacted(), resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
}

// ownObject splits a path-style URL on our endpoint into bucket and object.
func (s *Store) ownObject(u *url.URL) (string, string, bool) {
	if !strings.EqualFold(u.Host, s.client.EndpointURL().Host) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Check dipakai health check
func (s *Store) Check(ctx context.Context) error {
	_, err := s.client.ListBuckets(ctx)
	return err
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

const keyPrefix = "analysis:"

// AnalysisRepository menyimpan tiap record sebagai satu JSON document.
type AnalysisRepository struct {
	rdb      redis.UniversalClient
	ttl      time.Duration
	attempts int
}

// NewAnalysisRepository stores records without expiry when ttl is zero.
func NewAnalysisRepository(rdb redis.UniversalClient, ttl time.Duration, attempts int) *AnalysisRepository {
	return &AnalysisRepository{rdb: rdb, ttl: ttl, attempts: attempts}
}

func key(id string) string { return keyPrefix + id }

func decode(raw []byte) (*domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.Components == nil {
		rec.Components = []string{}
	}
	return &rec, nil
}

func (r *AnalysisRepository) Load(ctx context.Context, id string) (*domain.Record, error) {
	raw, err := r.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (r *AnalysisRepository) Insert(ctx context.Context, rec *domain.Record) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	ok, err := r.rdb.SetNX(ctx, key(rec.ID), raw, r.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Update is a WATCH/MULTI compare-and-set on the stored version.
func (r *AnalysisRepository) Update(ctx context.Context, rec *domain.Record, expected int64) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	k := key(rec.ID)
	stale := false
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			stale = true
			return nil
		}
		if err != nil {
			return err
		}
		stored, err := decode(cur)
		if err != nil {
			return err
		}
		if stored.Version != expected {
			stale = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, raw, r.ttl)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !stale, nil
}

func (r *AnalysisRepository) Remove(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Del(ctx, key(id)).Result()
	return n > 0, err
}

func (r *AnalysisRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	return r.Load(ctx, id)
}

func (r *AnalysisRepository) Upsert(ctx context.Context, id string, cs domain.ChangeSet) error {
	return domain.MergeUpsert(ctx, r, id, cs, r.attempts)
}

func (r *AnalysisRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.Remove(ctx, id)
}

// Ping dipakai health check
func (r *AnalysisRepository) Check(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

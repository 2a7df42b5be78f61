package memory

import (
	"context"
	"sync"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

// AnalysisRepository keeps records in process memory. Dipakai untuk dev lokal dan test.
type AnalysisRepository struct {
	mu       sync.Mutex
	records  map[string]domain.Record
	Attempts int
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{records: make(map[string]domain.Record)}
}

func clone(r domain.Record) *domain.Record {
	r.Components = append([]string{}, r.Components...)
	return &r
}

func (r *AnalysisRepository) Load(_ context.Context, id string) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return clone(rec), nil
}

func (r *AnalysisRepository) Insert(_ context.Context, rec *domain.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return true, nil
	}
	r.records[rec.ID] = *clone(*rec)
	return false, nil
}

func (r *AnalysisRepository) Update(_ context.Context, rec *domain.Record, expected int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.records[rec.ID]
	if !ok || cur.Version != expected {
		return false, nil
	}
	r.records[rec.ID] = *clone(*rec)
	return true, nil
}

func (r *AnalysisRepository) Remove(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return false, nil
	}
	delete(r.records, id)
	return true, nil
}

func (r *AnalysisRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	return r.Load(ctx, id)
}

func (r *AnalysisRepository) Upsert(ctx context.Context, id string, cs domain.ChangeSet) error {
	return domain.MergeUpsert(ctx, r, id, cs, r.Attempts)
}

func (r *AnalysisRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.Remove(ctx, id)
}

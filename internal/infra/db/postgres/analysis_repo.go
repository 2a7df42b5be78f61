package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_results (
  id                   VARCHAR(64)  PRIMARY KEY,
  component_list       TEXT         NOT NULL DEFAULT '[]',
  image_url            TEXT         NOT NULL DEFAULT '',
  architecture_detail  TEXT         NOT NULL DEFAULT '',
  template_name        VARCHAR(255) NOT NULL DEFAULT '',
  template_description TEXT         NOT NULL DEFAULT '',
  bicep_template       TEXT         NOT NULL DEFAULT '',
  arm_template         TEXT         NOT NULL DEFAULT '',
  arm_url              TEXT         NOT NULL DEFAULT '',
  zip_url              TEXT         NOT NULL DEFAULT '',
  version              BIGINT       NOT NULL,
  created_at           TIMESTAMPTZ  NOT NULL,
  updated_at           TIMESTAMPTZ  NOT NULL
);
`

const uniqueViolation = "23505"

type AnalysisRepository struct {
	db       *sql.DB
	attempts int
}

func NewAnalysisRepository(db *sql.DB, attempts int) *AnalysisRepository {
	return &AnalysisRepository{db: db, attempts: attempts}
}

func (r *AnalysisRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *AnalysisRepository) Load(ctx context.Context, id string) (*domain.Record, error) {
	const q = `
SELECT id, component_list, image_url, architecture_detail,
       template_name, template_description, bicep_template, arm_template,
       arm_url, zip_url, version, created_at, updated_at
FROM analysis_results WHERE id=$1;
`
	var (
		rec        domain.Record
		components string
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&rec.ID, &components, &rec.ImageURL, &rec.ArchitectureDetail,
		&rec.TemplateName, &rec.TemplateDescription, &rec.BicepTemplate, &rec.ArmTemplate,
		&rec.ArmURL, &rec.ZipURL, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Components, err = domain.DecodeComponents(components); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert tanpa ON CONFLICT: duplicate key berarti ada writer lain duluan
func (r *AnalysisRepository) Insert(ctx context.Context, rec *domain.Record) (bool, error) {
	const q = `
INSERT INTO analysis_results
  (id, component_list, image_url, architecture_detail,
   template_name, template_description, bicep_template, arm_template,
   arm_url, zip_url, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, domain.EncodeComponents(rec.Components), rec.ImageURL, rec.ArchitectureDetail,
		rec.TemplateName, rec.TemplateDescription, rec.BicepTemplate, rec.ArmTemplate,
		rec.ArmURL, rec.ZipURL, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return true, nil
	}
	return false, err
}

func (r *AnalysisRepository) Update(ctx context.Context, rec *domain.Record, expected int64) (bool, error) {
	const q = `
UPDATE analysis_results SET
  component_list=$1, image_url=$2, architecture_detail=$3,
  template_name=$4, template_description=$5, bicep_template=$6, arm_template=$7,
  arm_url=$8, zip_url=$9, version=$10, updated_at=$11
WHERE id=$12 AND version=$13;
`
	res, err := r.db.ExecContext(ctx, q,
		domain.EncodeComponents(rec.Components), rec.ImageURL, rec.ArchitectureDetail,
		rec.TemplateName, rec.TemplateDescription, rec.BicepTemplate, rec.ArmTemplate,
		rec.ArmURL, rec.ZipURL, rec.Version, rec.UpdatedAt,
		rec.ID, expected,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *AnalysisRepository) Remove(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_results WHERE id=$1;`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
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

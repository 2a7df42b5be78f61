package mysql

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_results (
  id                   VARCHAR(64)  NOT NULL PRIMARY KEY,
  component_list       TEXT         NOT NULL,
  image_url            TEXT         NOT NULL,
  architecture_detail  MEDIUMTEXT   NOT NULL,
  template_name        VARCHAR(255) NOT NULL,
  template_description TEXT         NOT NULL,
  bicep_template       MEDIUMTEXT   NOT NULL,
  arm_template         MEDIUMTEXT   NOT NULL,
  arm_url              TEXT         NOT NULL,
  zip_url              TEXT         NOT NULL,
  version              BIGINT       NOT NULL,
  created_at           DATETIME(6)  NOT NULL,
  updated_at           DATETIME(6)  NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

type AnalysisRepository struct {
	db       *sql.DB
	attempts int
}

func NewAnalysisRepository(db *sql.DB, attempts int) *AnalysisRepository {
	return &AnalysisRepository{db: db, attempts: attempts}
}

// Migrate bikin tabel kalau belum ada
func (r *AnalysisRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *AnalysisRepository) Load(ctx context.Context, id string) (*domain.Record, error) {
	const q = `
SELECT id, component_list, image_url, architecture_detail,
       template_name, template_description, bicep_template, arm_template,
       arm_url, zip_url, version, created_at, updated_at
FROM analysis_results WHERE id=?;
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *AnalysisRepository) Insert(ctx context.Context, rec *domain.Record) (bool, error) {
	const q = `
INSERT INTO analysis_results
  (id, component_list, image_url, architecture_detail,
   template_name, template_description, bicep_template, arm_template,
   arm_url, zip_url, version, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?);
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, domain.EncodeComponents(rec.Components), rec.ImageURL, rec.ArchitectureDetail,
		rec.TemplateName, rec.TemplateDescription, rec.BicepTemplate, rec.ArmTemplate,
		rec.ArmURL, rec.ZipURL, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if isDuplicate(err) {
		return true, nil
	}
	return false, err
}

func (r *AnalysisRepository) Update(ctx context.Context, rec *domain.Record, expected int64) (bool, error) {
	const q = `
UPDATE analysis_results SET
  component_list=?, image_url=?, architecture_detail=?,
  template_name=?, template_description=?, bicep_template=?, arm_template=?,
  arm_url=?, zip_url=?, version=?, updated_at=?
WHERE id=? AND version=?;
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_results WHERE id=?;`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get returns (nil, nil) kalau tidak ketemu
func (r *AnalysisRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	return r.Load(ctx, id)
}

func (r *AnalysisRepository) Upsert(ctx context.Context, id string, cs domain.ChangeSet) error {
	return domain.MergeUpsert(ctx, r, id, cs, r.attempts)
}

func (r *AnalysisRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.Remove(ctx, id)
}

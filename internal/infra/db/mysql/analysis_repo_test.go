package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

var columns = []string{
	"id", "component_list", "image_url", "architecture_detail",
	"template_name", "template_description", "bicep_template", "arm_template",
	"arm_url", "zip_url", "version", "created_at", "updated_at",
}

const selectQ = `SELECT .* FROM analysis_results WHERE id=\?`

func TestGetMissingReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(selectQ).WithArgs("a").WillReturnRows(sqlmock.NewRows(columns))

	rec, err := NewAnalysisRepository(db, 3).Get(context.Background(), "a")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMergesExistingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(selectQ).WithArgs("a").WillReturnRows(sqlmock.NewRows(columns).
		AddRow("a", `["VM","storage"]`, "https://img", "", "", "", "", "", "", "", 3, now, now))
	mock.ExpectExec(`UPDATE analysis_results SET`).
		WithArgs(`["VM","storage"]`, "https://img", "X", "", "", "", "", "", "", int64(4), sqlmock.AnyArg(), "a", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewAnalysisRepository(db, 3).Upsert(context.Background(), "a", domain.ChangeSet{domain.FieldArchitectureDetail: "X"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRetriesOnVersionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(selectQ).WithArgs("a").WillReturnRows(sqlmock.NewRows(columns).
		AddRow("a", `["VM"]`, "", "", "", "", "", "", "", "", 1, now, now))
	mock.ExpectExec(`UPDATE analysis_results SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectQ).WithArgs("a").WillReturnRows(sqlmock.NewRows(columns).
		AddRow("a", `["VM"]`, "", "detail from elsewhere", "", "", "", "", "", "", 2, now, now))
	mock.ExpectExec(`UPDATE analysis_results SET`).
		WithArgs(`["VM"]`, "", "detail from elsewhere", "", "", "", "", "https://arm", "", int64(3), sqlmock.AnyArg(), "a", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewAnalysisRepository(db, 3).Upsert(context.Background(), "a", domain.ChangeSet{domain.FieldArmURL: "https://arm"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertInsertDuplicateFallsBackToUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(selectQ).WithArgs("a").WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectExec(`INSERT INTO analysis_results`).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectQuery(selectQ).WithArgs("a").WillReturnRows(sqlmock.NewRows(columns).
		AddRow("a", `[]`, "", "", "", "", "", "", "", "", 1, now, now))
	mock.ExpectExec(`UPDATE analysis_results SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewAnalysisRepository(db, 3).Upsert(context.Background(), "a", domain.ChangeSet{domain.FieldImageURL: "u"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM analysis_results WHERE id=\?`).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM analysis_results WHERE id=\?`).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAnalysisRepository(db, 3)
	ok, err := repo.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS analysis_results`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewAnalysisRepository(db, 3).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

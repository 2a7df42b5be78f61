package mysql

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

const errDuplicateEntry = 1062

// isDuplicate reports a primary key collision (MySQL error 1062)
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.Record, error) {
	var (
		rec        domain.Record
		components string
	)
	if err := s.Scan(&rec.ID, &components, &rec.ImageURL, &rec.ArchitectureDetail,
		&rec.TemplateName, &rec.TemplateDescription, &rec.BicepTemplate, &rec.ArmTemplate,
		&rec.ArmURL, &rec.ZipURL, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	list, err := domain.DecodeComponents(components)
	if err != nil {
		return nil, err
	}
	rec.Components = list
	return &rec, nil
}

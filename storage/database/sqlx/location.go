package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolbus/core/tracking"
)

const (
	latestReportsQuery = `
SELECT DISTINCT ON (entity_id) entity_id, kind, route_id, lat, lng, recorded_at
FROM location_reports
ORDER BY entity_id, recorded_at DESC, id DESC`

	insertReportQuery = `
INSERT INTO location_reports (entity_id, kind, route_id, lat, lng, recorded_at)
VALUES (:entity_id, :kind, :route_id, :lat, :lng, :recorded_at)`

	deleteEntityQuery = `DELETE FROM location_reports WHERE entity_id = $1`
)

// reportRow is a location_reports row. coordinates are NULL when the entity had no fix.
type reportRow struct {
	EntityID   string       `db:"entity_id"`
	Kind       string       `db:"kind"`
	RouteID    string       `db:"route_id"`
	Lat        null.Float64 `db:"lat"`
	Lng        null.Float64 `db:"lng"`
	RecordedAt time.Time    `db:"recorded_at"`
}

func newReportRow(r tracking.Report) reportRow {
	kind := r.Kind
	if kind == "" {
		kind = tracking.KindBus
	}
	return reportRow{
		EntityID:   r.EntityID,
		Kind:       string(kind),
		RouteID:    r.RouteID,
		Lat:        null.Float64FromPtr(r.Lat),
		Lng:        null.Float64FromPtr(r.Lng),
		RecordedAt: r.RecordedAt.UTC(),
	}
}

func (row reportRow) report() tracking.Report {
	r := tracking.Report{
		EntityID:   row.EntityID,
		Kind:       tracking.Kind(row.Kind),
		RouteID:    row.RouteID,
		RecordedAt: row.RecordedAt.UTC(),
	}
	// a half-known position is no position
	if row.Lat.Valid && row.Lng.Valid {
		r.Lat = row.Lat.Ptr()
		r.Lng = row.Lng.Ptr()
	}
	return r
}

type LocationRepository struct {
	db *sqlx.DB
}

func NewLocationRepository(db *sqlx.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (repo *LocationRepository) LatestReports(ctx context.Context) ([]tracking.Report, error) {
	var rows []reportRow
	if err := repo.db.SelectContext(ctx, &rows, latestReportsQuery); err != nil {
		return nil, errors.Wrap(err, "selecting latest reports")
	}

	reports := make([]tracking.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.report())
	}
	return reports, nil
}

func (repo *LocationRepository) RecordReport(ctx context.Context, r tracking.Report) error {
	if _, err := repo.db.NamedExecContext(ctx, insertReportQuery, newReportRow(r)); err != nil {
		return errors.Wrap(err, "inserting report")
	}
	return nil
}

func (repo *LocationRepository) DeleteEntity(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, deleteEntityQuery, id)
	if err != nil {
		return errors.Wrap(err, "deleting reports")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting reports")
	}
	if n == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/schoolbus/core/tracking"
)

type LocationRepository struct {
	db *reportTable
}

func NewLocationRepository(db *DB) *LocationRepository {
	return &LocationRepository{db: db.report}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func (row reportRow) report() tracking.Report {
	return tracking.Report{
		EntityID:   row.entityID,
		Kind:       tracking.Kind(row.kind),
		RouteID:    row.routeID,
		Lat:        copyFloat(row.lat),
		Lng:        copyFloat(row.lng),
		RecordedAt: row.recordedAt,
	}
}

// newer reports whether row a supersedes row b.
func newer(a, b reportRow) bool {
	if a.recordedAt.Equal(b.recordedAt) {
		return a.id > b.id
	}
	return a.recordedAt.After(b.recordedAt)
}

func (repo *LocationRepository) LatestReports(ctx context.Context) ([]tracking.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	latest := make(map[string]reportRow)
	for _, row := range repo.db.rows {
		if cur, ok := latest[row.entityID]; !ok || newer(row, cur) {
			latest[row.entityID] = row
		}
	}

	reports := make([]tracking.Report, 0, len(latest))
	for _, row := range latest {
		reports = append(reports, row.report())
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].EntityID < reports[j].EntityID })
	return reports, nil
}

func (repo *LocationRepository) RecordReport(ctx context.Context, r tracking.Report) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pk++
	repo.db.rows = append(repo.db.rows, reportRow{
		id:         repo.db.pk,
		entityID:   r.EntityID,
		kind:       string(r.Kind),
		routeID:    r.RouteID,
		lat:        copyFloat(r.Lat),
		lng:        copyFloat(r.Lng),
		recordedAt: r.RecordedAt.UTC(),
	})
	return nil
}

func (repo *LocationRepository) DeleteEntity(ctx context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	kept := repo.db.rows[:0]
	for _, row := range repo.db.rows {
		if row.entityID != id {
			kept = append(kept, row)
		}
	}
	if len(kept) == len(repo.db.rows) {
		return tracking.ErrNotFound
	}
	repo.db.rows = kept
	return nil
}

package feed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolbus/core/tracking"
)

// Source fetches the latest location report of every entity in the feed.
type Source interface {
	Fetch(ctx context.Context) ([]tracking.Report, error)
}

// Repository persists location reports.
type Repository interface {
	// LatestReports returns the most recent report of every entity, ordered by entity ID.
	LatestReports(ctx context.Context) ([]tracking.Report, error)
	RecordReport(ctx context.Context, r tracking.Report) error
	// DeleteEntity deletes every report of entity id; tracking.ErrNotFound if it has none.
	DeleteEntity(ctx context.Context, id string) error
}

// RepositorySource reads the feed from the reports stored by the API and the admin CLI.
type RepositorySource struct {
	repo Repository
}

var _ Source = (*RepositorySource)(nil)

func NewRepositorySource(repo Repository) *RepositorySource {
	return &RepositorySource{repo: repo}
}

func (s *RepositorySource) Fetch(ctx context.Context) ([]tracking.Report, error) {
	reports, err := s.repo.LatestReports(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying latest reports")
	}
	return reports, nil
}

package service

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/dto"
	"github.com/inboxvault/inboxvault/internal/models"
)

type vaultReader interface {
	All() []models.ArchivedRecord
	Len() int
}

// ListingService serves filtered, ordered archive listings.
type ListingService struct {
	store  vaultReader
	logger *zap.Logger
}

func NewListingService(store vaultReader, logger *zap.Logger) *ListingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingService{store: store, logger: logger}
}

// List returns the records matching the query, ordered by effective
// timestamp. Total counts the unfiltered collection so callers can
// tell an empty archive from a search with no matches.
func (s *ListingService) List(query dto.ListQuery) dto.ListResponse {
	filter := query.Filter()
	all := s.store.All()

	matched := make([]models.ArchivedRecord, 0, len(all))
	for _, rec := range all {
		if rec.Matches(filter.Query) {
			matched = append(matched, rec)
		}
	}

	// All is newest first already; oldest just reverses it.
	if filter.Sort == models.SortOldest {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].EffectiveTimestamp().Before(matched[j].EffectiveTimestamp())
		})
	}

	return dto.ListResponse{
		Records: dto.NewRecordViews(matched, time.Now().UTC()),
		Total:   len(all),
	}
}

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/dto"
	"github.com/inboxvault/inboxvault/internal/models"
)

type stubVaultReader struct {
	records []models.ArchivedRecord
}

func (r *stubVaultReader) All() []models.ArchivedRecord { return r.records }
func (r *stubVaultReader) Len() int                     { return len(r.records) }

func listingFixture() *stubVaultReader {
	base := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	return &stubVaultReader{records: []models.ArchivedRecord{
		{ID: "c", Username: "Carol", Handle: "@carol", MessagePreview: "movie tonight?", Timestamp: base},
		{ID: "b", Username: "Bob", Notes: "about the movie", Timestamp: base.Add(-time.Hour)},
		{ID: "g", GroupName: "Alice, Dave and 2 more", IsGroupChat: true,
			Participants: []string{"Alice", "Dave"}, Timestamp: base.Add(-2 * time.Hour)},
	}}
}

func TestListingService_ListAll(t *testing.T) {
	svc := NewListingService(listingFixture(), zap.NewNop())

	resp := svc.List(dto.ListQuery{})

	require.Len(t, resp.Records, 3)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "c", resp.Records[0].ID, "store order is preserved")
}

func TestListingService_SearchSpansFields(t *testing.T) {
	svc := NewListingService(listingFixture(), zap.NewNop())

	tests := []struct {
		name  string
		query string
		ids   []string
	}{
		{"username", "carol", []string{"c"}},
		{"notes", "movie", []string{"c", "b"}},
		{"participant", "dave", []string{"g"}},
		{"group name", "and 2 more", []string{"g"}},
		{"no matches", "zebra", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := svc.List(dto.ListQuery{Query: tt.query})
			ids := make([]string, 0, len(resp.Records))
			for _, rec := range resp.Records {
				ids = append(ids, rec.ID)
			}
			if tt.ids == nil {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.ids, ids)
			}
			assert.Equal(t, 3, resp.Total, "total always counts the whole collection")
		})
	}
}

func TestListingService_SortOldest(t *testing.T) {
	svc := NewListingService(listingFixture(), zap.NewNop())

	resp := svc.List(dto.ListQuery{Sort: "oldest"})

	require.Len(t, resp.Records, 3)
	assert.Equal(t, "g", resp.Records[0].ID)
	assert.Equal(t, "c", resp.Records[2].ID)
}

func TestListingService_EmptyArchiveVersusNoMatches(t *testing.T) {
	empty := NewListingService(&stubVaultReader{}, zap.NewNop())
	resp := empty.List(dto.ListQuery{Query: "anything"})
	assert.Empty(t, resp.Records)
	assert.Equal(t, 0, resp.Total)

	populated := NewListingService(listingFixture(), zap.NewNop())
	resp = populated.List(dto.ListQuery{Query: "zebra"})
	assert.Empty(t, resp.Records)
	assert.Equal(t, 3, resp.Total)
}

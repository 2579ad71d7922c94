package dto

import (
	"fmt"
	"time"

	"github.com/inboxvault/inboxvault/internal/models"
)

// NotesPreviewLimit caps the notes excerpt returned in listings.
const NotesPreviewLimit = 80

// RawItemPayload mirrors one live conversation entry submitted by a
// host adapter.
type RawItemPayload struct {
	ExternalID string `json:"externalId"`
	HTML       string `json:"html"`
	Text       string `json:"text"`
}

func (p RawItemPayload) Model() models.RawItem {
	return models.RawItem{ExternalID: p.ExternalID, HTML: p.HTML, Text: p.Text}
}

// ArchiveRequest submits live entries for archival, either as raw
// payloads or as bridge handles from a prior view snapshot. At least
// one of the two must be present.
type ArchiveRequest struct {
	Items   []RawItemPayload `json:"items"`
	Handles []uint64         `json:"handles"`
}

// ArchiveResponse reports the outcome of an archive call.
type ArchiveResponse struct {
	Archived   []RecordView `json:"archived"`
	Duplicates int          `json:"duplicates"`
}

// RestoreRequest names archived records to return to the live view.
type RestoreRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// RestoreResponse lists the records actually restored.
type RestoreResponse struct {
	Restored []RecordView `json:"restored"`
}

// NotesRequest replaces the notes on a record. An empty string clears
// them.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// NotesResponse reports a notes edit. Updated is false when the id was
// not archived; the edit is then a no-op and Record stays empty.
type NotesResponse struct {
	Updated bool        `json:"updated"`
	Record  *RecordView `json:"record,omitempty"`
}

// ListQuery captures archive listing parameters.
type ListQuery struct {
	Query string `form:"q"`
	Sort  string `form:"sort"`
}

func (q ListQuery) Filter() models.ListFilter {
	sort := models.SortNewest
	if q.Sort == string(models.SortOldest) {
		sort = models.SortOldest
	}
	return models.ListFilter{Query: q.Query, Sort: sort}
}

// ListResponse carries the filtered archive listing. Empty and
// no-matches are distinguishable through Total, which counts the whole
// collection before filtering.
type ListResponse struct {
	Records []RecordView `json:"records"`
	Total   int          `json:"total"`
}

// ImportResponse reports the outcome of an import call.
type ImportResponse struct {
	Mode     string `json:"mode"`
	Imported int    `json:"imported"`
	Total    int    `json:"total"`
}

// ClearResponse reports how many records a clear dropped.
type ClearResponse struct {
	Dropped int `json:"dropped"`
}

// ViewIngestRequest pushes a full host re-render into the bridge.
type ViewIngestRequest struct {
	Items []RawItemPayload `json:"items"`
}

// ViewDecision tells the host adapter whether one submitted entry
// should be hidden, keyed by its derived archive id.
type ViewDecision struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId,omitempty"`
	Hidden     bool   `json:"hidden"`
}

// RecordView is the listing shape of an archived record: the stored
// fields plus display helpers derived at read time.
type RecordView struct {
	models.ArchivedRecord
	RelativeTime string `json:"relativeTime"`
	NotesPreview string `json:"notesPreview,omitempty"`
}

func NewRecordView(rec models.ArchivedRecord, now time.Time) RecordView {
	return RecordView{
		ArchivedRecord: rec,
		RelativeTime:   RelativeTime(rec.EffectiveTimestamp(), now),
		NotesPreview:   notesPreview(rec.Notes),
	}
}

func NewRecordViews(recs []models.ArchivedRecord, now time.Time) []RecordView {
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, NewRecordView(rec, now))
	}
	return views
}

// RelativeTime renders an instant the way conversation lists do:
// recent instants as an age, older ones as a date.
func RelativeTime(at, now time.Time) string {
	if at.IsZero() {
		return ""
	}
	age := now.Sub(at)
	switch {
	case age < time.Minute:
		return "Just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	case age < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	default:
		return at.Format("Jan 2, 2006")
	}
}

func notesPreview(notes string) string {
	runes := []rune(notes)
	if len(runes) <= NotesPreviewLimit {
		return notes
	}
	return string(runes[:NotesPreviewLimit]) + "…"
}

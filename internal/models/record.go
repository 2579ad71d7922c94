package models

import (
	"strings"
	"time"
)

// Defaults applied when extraction cannot produce a value.
const (
	FallbackUsername = "User"
	FallbackPreview  = "No message content"
)

// ExportVersion identifies the archive export file format.
const ExportVersion = "1.0"

// RawItem is one live conversation entry as reported by the host view:
// a markup fragment plus its flattened text. It carries no guaranteed
// stable key and is never persisted.
type RawItem struct {
	// ExternalID is the host-assigned opaque id, empty when the host
	// did not stamp one on the element.
	ExternalID string `json:"externalId"`
	// HTML is the serialized markup of the entry.
	HTML string `json:"html"`
	// Text is the flattened visible text of the entry.
	Text string `json:"text"`
}

// ArchivedRecord is one hidden conversation as stored in the archive.
// JSON field names match the export file format so exported archives
// stay interchangeable with older exports.
type ArchivedRecord struct {
	ID               string    `json:"id"`
	Content          string    `json:"content"`
	HTML             string    `json:"html"`
	AvatarURLs       []string  `json:"avatarUrls"`
	Username         string    `json:"username"`
	Handle           string    `json:"handle"`
	Timestamp        time.Time `json:"timestamp"`
	MessageTimestamp time.Time `json:"messageTimestamp"`
	MessagePreview   string    `json:"messagePreview"`
	IsGroupChat      bool      `json:"isGroupChat"`
	Participants     []string  `json:"participants"`
	ParticipantCount int       `json:"participantCount"`
	GroupName        string    `json:"groupName"`
	Notes            string    `json:"notes"`
}

// EffectiveTimestamp is the instant used for sorting and display: the
// recovered message time when extraction found one, the archival time
// otherwise. The fallback happens at read time so a record archived
// before its message time could be recovered still sorts correctly.
func (r ArchivedRecord) EffectiveTimestamp() time.Time {
	if !r.MessageTimestamp.IsZero() {
		return r.MessageTimestamp
	}
	return r.Timestamp
}

// Matches reports whether the record contains the query as a
// case-insensitive substring in any searchable field.
func (r ArchivedRecord) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	fields := []string{r.Username, r.Handle, r.MessagePreview, r.Notes, r.GroupName}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	for _, p := range r.Participants {
		if strings.Contains(strings.ToLower(p), q) {
			return true
		}
	}
	if r.IsGroupChat && r.Content != "" {
		firstLine, _, _ := strings.Cut(r.Content, "\n")
		if strings.Contains(strings.ToLower(firstLine), q) {
			return true
		}
	}
	return false
}

// SortOrder selects listing direction over the effective timestamp.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// ListFilter narrows and orders archive listings.
type ListFilter struct {
	Query string
	Sort  SortOrder
}

// ExportEnvelope is the structured export/import document.
type ExportEnvelope struct {
	ArchivedMessages []ArchivedRecord `json:"archivedMessages"`
	ExportDate       time.Time        `json:"exportDate"`
	Version          string           `json:"version"`
}

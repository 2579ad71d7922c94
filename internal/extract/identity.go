package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/inboxvault/inboxvault/internal/models"
)

// GroupIDPrefix marks fingerprints derived from group conversations.
const GroupIDPrefix = "group_"

// Truncation lengths for derived fingerprints. Shared leading text
// still collides at these lengths; that is an accepted property of a
// content fingerprint, not something a different length would fix.
const (
	groupIDLength  = 50
	singleIDLength = 30
)

// externalIDAttr is the opaque id the host page stamps on an item's
// root element when it assigns one. It is the only identity source
// with a real uniqueness guarantee and always wins.
const externalIDAttr = "data-item-id"

var wordAnd = regexp.MustCompile(`\band\b`)

// IsGroupConversation reports the group-chat signal: the raw text
// contains both a comma and the word "and". It runs on the uncleaned
// text because normalization can alter group indicators, and it is the
// single classification shared by identity derivation and field
// extraction.
func IsGroupConversation(text string) bool {
	return strings.Contains(text, ",") && wordAnd.MatchString(text)
}

// DeriveID computes the archive key for a raw item. It is total and
// deterministic: the host-assigned id when present, otherwise a
// fingerprint of the normalized text. Distinct items with identical
// leading text collide deterministically.
func DeriveID(item models.RawItem) string {
	if item.ExternalID != "" {
		return item.ExternalID
	}
	if id := markupExternalID(item.HTML); id != "" {
		return id
	}

	cleaned := strings.TrimSpace(Normalize(item.Text))
	if IsGroupConversation(item.Text) {
		firstLine, _, _ := strings.Cut(cleaned, "\n")
		return GroupIDPrefix + truncate(strings.TrimSpace(firstLine), groupIDLength)
	}
	return truncate(cleaned, singleIDLength)
}

// markupExternalID extracts the host-assigned id attribute from the
// item markup when the caller did not already surface it.
func markupExternalID(html string) string {
	if html == "" || !strings.Contains(html, externalIDAttr) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	id, _ := doc.Find("[" + externalIDAttr + "]").First().Attr(externalIDAttr)
	return id
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

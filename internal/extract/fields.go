package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/inboxvault/inboxvault/internal/models"
)

// Markup shapes of the host view this adapter currently understands.
// These are best-effort conventions, not a grammar: a reshaped host
// page degrades extraction to the text-only fallbacks below.
const (
	selConversationLink = `a[role="link"]`
	selNameNode         = `strong, span[dir="auto"]`
	selContentNode      = `div[dir="auto"] > span`
	selGroupNameNode    = `[data-testid="conversation"] span`
	selAvatarImage      = `img[src*="profile"]`
)

const maxAvatarRefs = 4

var (
	linkUserParts   = regexp.MustCompile(`^([^@]+)(@\S+)`)
	handleToken     = regexp.MustCompile(`@\S+`)
	cryptoHandle    = regexp.MustCompile(`(?i)([A-Za-z0-9_.-]+\.eth)`)
	residualAge     = regexp.MustCompile(`[·•]\s*\d+[hmd]`)
	relativeAge     = regexp.MustCompile(`(?:[·•]\s*)?\b(\d+)([hmd])\b`)
	absoluteDate    = regexp.MustCompile(`(` + monthAlternation + `)\s+(\d{1,2})(?:,?\s+(\d{4}))?`)
	andNMore        = regexp.MustCompile(`\s+and\s+(\d+)\s+more`)
	embeddedDate    = regexp.MustCompile(`(?i)(?:^|\s)[·•]?\s*(?:` + monthAlternation + `)\s+\d{1,2}(?:,?\s+\d{4})?\s*`)
	leadingDate     = regexp.MustCompile(`(?i)^[·•]\s*(?:` + monthAlternation + `)\s+\d{1,2}(?:,?\s+\d{4})?\s*`)
	leadingBullet   = regexp.MustCompile(`^[·•]\s*`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	headerSeparator = " · "
)

var monthIndex = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// boilerplateMarkers flag host UI text that can never be a name.
var boilerplateMarkers = []string{"You accepted", "Message requests", "accepted the request"}

// Extract derives the structured record from a raw item. It never
// fails: every field has a defined fallback, so the result is always
// well-formed even against markup the heuristics do not recognize.
// Timestamp and Notes stay zero; the store owns both.
func Extract(item models.RawItem, now time.Time) models.ArchivedRecord {
	doc := parseMarkup(item.HTML)
	text := item.Text
	isGroup := IsGroupConversation(text)
	avatars := avatarRefs(doc)
	username, handle := extractIdentity(doc, text)

	rec := models.ArchivedRecord{
		ID:               DeriveID(item),
		Content:          text,
		HTML:             item.HTML,
		AvatarURLs:       avatars,
		Username:         username,
		Handle:           handle,
		MessageTimestamp: recoverTimestamp(text, now),
		MessagePreview:   extractPreview(doc, text),
		IsGroupChat:      isGroup,
	}
	if isGroup {
		rec.GroupName = extractGroupName(doc, text, len(avatars))
		rec.Participants, rec.ParticipantCount = extractParticipants(text, len(avatars))
	}
	return rec
}

func parseMarkup(html string) *goquery.Document {
	if html == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return doc
}

// identityStep is one heuristic in the username/handle fallback chain.
// Steps are pure and independently testable; the first success wins.
type identityStep func(doc *goquery.Document, text string) (username, handle string, ok bool)

var identityChain = []identityStep{
	fromConversationLink,
	fromFirstLine,
	fromNameNode,
	fromCryptoHandle,
	fromShortestFragment,
}

func extractIdentity(doc *goquery.Document, text string) (string, string) {
	var username, handle string
	for _, step := range identityChain {
		if u, h, ok := step(doc, text); ok {
			username, handle = u, h
			break
		}
	}

	// Shared cleanup regardless of which step produced the value.
	if handle == "" && strings.Contains(username, "@") {
		name, rest, _ := strings.Cut(username, "@")
		username = strings.TrimSpace(name)
		handle = "@" + strings.TrimSpace(rest)
	}
	if before, _, found := strings.Cut(username, ","); found {
		username = before
	}
	username = residualAge.ReplaceAllString(username, "")
	if handle != "" {
		username = strings.ReplaceAll(username, handle, "")
	}
	username = strings.TrimSpace(username)
	if username == "" || username == "You" {
		username = models.FallbackUsername
	}
	return username, handle
}

func fromConversationLink(doc *goquery.Document, _ string) (string, string, bool) {
	if doc == nil {
		return "", "", false
	}
	linkText := strings.TrimSpace(doc.Find(selConversationLink).First().Text())
	if linkText == "" {
		return "", "", false
	}
	if m := linkUserParts.FindStringSubmatch(linkText); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	return linkText, "", true
}

func fromFirstLine(_ *goquery.Document, text string) (string, string, bool) {
	firstLine, _, _ := strings.Cut(text, "\n")
	firstLine = strings.TrimSpace(firstLine)
	if firstLine == "" || strings.Contains(firstLine, "accepted") || strings.Contains(firstLine, "You") {
		return "", "", false
	}
	handle := handleToken.FindString(firstLine)
	username := firstLine
	if handle != "" {
		username = strings.TrimSpace(strings.ReplaceAll(username, handle, ""))
	}
	return username, handle, true
}

func fromNameNode(doc *goquery.Document, _ string) (string, string, bool) {
	if doc == nil {
		return "", "", false
	}
	name := strings.TrimSpace(doc.Find(selNameNode).First().Text())
	if name == "" {
		return "", "", false
	}
	return name, "", true
}

// fromCryptoHandle is a last-resort match for ".eth" style usernames
// that appear only in the flattened content.
func fromCryptoHandle(_ *goquery.Document, text string) (string, string, bool) {
	if !strings.Contains(text, "eth") {
		return "", "", false
	}
	m := cryptoHandle.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], "", true
}

// fromShortestFragment walks every text node in the markup and takes
// the shortest non-boilerplate fragment; short fragments are the most
// likely to be names.
func fromShortestFragment(doc *goquery.Document, _ string) (string, string, bool) {
	candidates := make([]string, 0, 8)
	for _, frag := range textFragments(doc) {
		if len(frag) <= 1 || len(frag) >= 30 || isBoilerplate(frag) {
			continue
		}
		candidates = append(candidates, frag)
	}
	if len(candidates) == 0 {
		return "", "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) < len(candidates[j]) })
	username := candidates[0]
	handle := handleToken.FindString(username)
	if handle != "" {
		username = strings.TrimSpace(strings.ReplaceAll(username, handle, ""))
	}
	return username, handle, true
}

func textFragments(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	var out []string
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "#text" {
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func isBoilerplate(s string) bool {
	for _, marker := range boilerplateMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return strings.HasPrefix(s, "You")
}

func extractPreview(doc *goquery.Document, text string) string {
	if strings.Contains(text, "accepted the request") {
		return "You accepted the request"
	}
	var preview string
	if doc != nil {
		preview = strings.TrimSpace(doc.Find(selContentNode).First().Text())
	}
	if preview == "" {
		if _, rest, found := strings.Cut(text, "\n"); found {
			preview = strings.TrimSpace(strings.ReplaceAll(rest, "\n", " "))
		}
	}
	preview = cleanPreview(preview)
	if preview == "" {
		return models.FallbackPreview
	}
	return preview
}

// cleanPreview strips the leading username/timestamp header segment,
// embedded date and relative-age fragments, and leading bullets.
// Rule order matters: reordering reintroduces stripped fragments.
func cleanPreview(preview string) string {
	if preview == "" {
		return ""
	}
	if strings.Contains(preview, headerSeparator) {
		// Header-shaped start; the real content begins after the
		// first line break when one survives.
		if nl := strings.Index(preview, "\n"); nl != -1 {
			preview = preview[nl:]
		}
	}
	preview = embeddedDate.ReplaceAllString(preview, " ")
	preview = leadingDate.ReplaceAllString(preview, "")
	preview = residualAge.ReplaceAllString(preview, "")
	preview = leadingBullet.ReplaceAllString(preview, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(preview, " "))
}

// recoverTimestamp estimates the original message time from the raw
// text. Relative ages win over absolute dates; when neither matches
// the zero time is returned and the record falls back to archival time
// at read time, never at write time.
func recoverTimestamp(text string, now time.Time) time.Time {
	if m := relativeAge.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			switch m[2] {
			case "m":
				return now.Add(-time.Duration(n) * time.Minute)
			case "h":
				return now.Add(-time.Duration(n) * time.Hour)
			case "d":
				return now.Add(-time.Duration(n) * 24 * time.Hour)
			}
		}
	}
	if m := absoluteDate.FindStringSubmatch(text); m != nil {
		day, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}
		}
		year := now.Year()
		if m[3] != "" {
			if y, err := strconv.Atoi(m[3]); err == nil {
				year = y
			}
		}
		return time.Date(year, monthIndex[m[1]], day, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

func extractGroupName(doc *goquery.Document, text string, avatarCount int) string {
	// Dedicated group header node first.
	if doc != nil {
		var name string
		doc.Find(selGroupNameNode).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := strings.TrimSpace(s.Text())
			if strings.Contains(t, ",") && wordAnd.MatchString(t) {
				name = t
				return false
			}
			return true
		})
		if name != "" {
			return name
		}
	}
	// A header-shaped raw text line.
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, ",") && wordAnd.MatchString(line) {
			return strings.TrimSpace(line)
		}
	}
	// Synthesize from short text fragments when multiple avatars show
	// this really is a group.
	if avatarCount >= 2 {
		for _, frag := range textFragments(doc) {
			if len(frag) < 2 || len(frag) > 29 {
				continue
			}
			if strings.Contains(frag, "accepted") || strings.HasPrefix(frag, "You") || strings.Contains(frag, "·") {
				continue
			}
			return frag
		}
	}
	return ""
}

// extractParticipants parses the first text line against the
// "Name1[, Name2][, Name3][ and N more]" shape.
func extractParticipants(text string, avatarCount int) ([]string, int) {
	firstLine, _, _ := strings.Cut(text, "\n")
	more := 0
	if m := andNMore.FindStringSubmatch(firstLine); m != nil {
		more, _ = strconv.Atoi(m[1])
	}
	namePart := andNMore.ReplaceAllString(firstLine, "")

	participants := make([]string, 0, 3)
	for _, seg := range strings.Split(namePart, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" || strings.Contains(seg, "more") || wordAnd.MatchString(seg) {
			continue
		}
		participants = append(participants, seg)
		if len(participants) == 3 {
			break
		}
	}

	if more > 0 {
		return participants, more + len(participants)
	}
	count := len(participants)
	if avatarCount > count {
		count = avatarCount
	}
	if count < 2 {
		count = 2
	}
	return participants, count
}

func avatarRefs(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	var refs []string
	doc.Find(selAvatarImage).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src, ok := s.Attr("src"); ok && src != "" {
			refs = append(refs, src)
		}
		return len(refs) < maxAvatarRefs
	})
	return refs
}

package extract

import "regexp"

// cleanupRule pairs a volatile-text pattern with its replacement. Rules
// run in order; the more specific separator-prefixed forms must run
// before the bare forms so a "· 3h" is consumed whole instead of
// leaving a dangling separator behind.
type cleanupRule struct {
	pattern     *regexp.Regexp
	replacement string
}

const monthAlternation = `Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec`

var normalizerRules = []cleanupRule{
	// "· 3h", "• 12m" style relative ages with their separator.
	{regexp.MustCompile(`[ \t]*[·•]\s*\d+[smhd]\b`), ""},
	// "· May 14", "· Apr 2, 2023" style dates with their separator.
	{regexp.MustCompile(`[ \t]*[·•]\s*(?:` + monthAlternation + `)\s+\d{1,2}(?:,\s*\d{4})?`), ""},
	// Bare relative ages.
	{regexp.MustCompile(`[ \t]*\b\d+[smhd]\b`), ""},
	// Bare month/day dates, with optional year.
	{regexp.MustCompile(`[ \t]*\b(?:` + monthAlternation + `)\s+\d{1,2}(?:,\s*\d{4})?`), ""},
}

// Normalize strips volatile timestamp and date substrings from text so
// identity derivation stays stable across re-renders of the same
// logical item. Newlines are preserved: first-line heuristics depend on
// them. A string containing none of the volatile patterns is returned
// unchanged.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	cleaned := text
	for _, rule := range normalizerRules {
		cleaned = rule.pattern.ReplaceAllString(cleaned, rule.replacement)
	}
	return cleaned
}

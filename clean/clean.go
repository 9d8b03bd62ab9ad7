// Package clean normalises the free text found in GTFS feeds
// (headsigns, stop names, route long names) into short display
// labels.
//
// Every function is safe on arbitrary input and idempotent.
package clean

import (
	"regexp"
	"strings"
)

type replacement struct {
	re   *regexp.Regexp
	with string
}

func word(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`)
}

var (
	returnSuffix = regexp.MustCompile(`(?i)\s*\(return\)`)

	andSlash = regexp.MustCompile(`(^|\W)[&@](\W|$)`)

	bounds = word(`north ?bound|south ?bound|east ?bound|west ?bound|nb|sb|eb|wb`)

	numbers = []replacement{
		{word(`first`), "1st"},
		{word(`second`), "2nd"},
		{word(`third`), "3rd"},
		{word(`fourth`), "4th"},
		{word(`fifth`), "5th"},
		{word(`sixth`), "6th"},
		{word(`seventh`), "7th"},
		{word(`eighth`), "8th"},
		{word(`ninth`), "9th"},
		{word(`tenth`), "10th"},
		{word(`eleventh`), "11th"},
		{word(`twelfth`), "12th"},
	}

	streetTypes = []replacement{
		{word(`avenue`), "Ave"},
		{word(`boulevard`), "Blvd"},
		{word(`circle`), "Cir"},
		{word(`court`), "Ct"},
		{word(`crescent`), "Cres"},
		{word(`drive`), "Dr"},
		{word(`highway`), "Hwy"},
		{word(`lane`), "Ln"},
		{word(`parkway`), "Pkwy"},
		{word(`place`), "Pl"},
		{word(`road`), "Rd"},
		{word(`square`), "Sq"},
		{word(`street`), "St"},
		{word(`terrace`), "Terr"},
		{word(`trail`), "Trl"},
	}

	spaces       = regexp.MustCompile(`\s+`)
	emptyParens  = regexp.MustCompile(`\(\s*\)`)
	openParen    = regexp.MustCompile(`\(\s+`)
	closeParen   = regexp.MustCompile(`\s+\)`)
	slashSpacing = regexp.MustCompile(`\s*/\s*`)
	edgeJunk     = regexp.MustCompile(`^[\s\-/,]+|[\s\-/,]+$`)
)

func apply(s string, rs []replacement) string {
	for _, r := range rs {
		s = r.re.ReplaceAllString(s, r.with)
	}
	return s
}

// ReturnSuffix drops the " (return)" marker Brandon Transit appends
// to headsigns of inbound trips.
func ReturnSuffix(s string) string {
	return returnSuffix.ReplaceAllString(s, "")
}

// AndSlash turns "&" and "@" intersection separators into "/".
func AndSlash(s string) string {
	return andSlash.ReplaceAllString(s, "${1}/${2}")
}

// Bounds removes direction-of-travel words ("Northbound", "EB").
func Bounds(s string) string {
	return bounds.ReplaceAllString(s, "")
}

// Numbers spells ordinals as digits ("Eighteenth" is left alone,
// only first through twelfth are rewritten).
func Numbers(s string) string {
	return apply(s, numbers)
}

// StreetTypes abbreviates street types ("Avenue" to "Ave").
func StreetTypes(s string) string {
	return apply(s, streetTypes)
}

// Label tidies whitespace, parentheses and slashes, and trims
// separators left dangling at either end.
func Label(s string) string {
	s = emptyParens.ReplaceAllString(s, "")
	s = openParen.ReplaceAllString(s, "(")
	s = closeParen.ReplaceAllString(s, ")")
	s = slashSpacing.ReplaceAllString(s, " / ")
	s = spaces.ReplaceAllString(s, " ")
	s = edgeJunk.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

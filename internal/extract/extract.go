// Package extract parses the archive's structured naming convention into
// typed metadata. The archive organizes media by brand / region / year /
// event, and the filenames carry day numbers, episode markers, buy-in
// amounts, and player matchups. Extraction is a pure function of the path
// and filename strings; results are memoized in an LRU so repeated catalog
// refreshes do not re-run the full regex battery per file.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
)

// memoSize is the minimum memoization capacity. 1024 covers a full poll
// cycle of a typical archive directory without eviction churn.
const memoSize = 1024

// Year bounds for plausible production years.
const (
	minYear = 1970
	maxYear = 2030
)

// Metadata holds the typed fields parsed from a path and filename. Zero
// values mean "not present"; Players and Tags are nil when empty.
type Metadata struct {
	Brand        string
	Year         int
	Location     string
	EventType    string
	ContentType  string
	Series       string
	Day          string
	Episode      string
	BuyIn        string
	Players      []string
	DisplayTitle string
	Tags         []string
}

// pattern pairs a compiled regex with the canonical label it yields.
type pattern struct {
	re    *regexp.Regexp
	label string
}

func newPattern(expr, label string) pattern {
	return pattern{re: regexp.MustCompile(`(?i)` + expr), label: label}
}

// Brand patterns, priority ordered. First match wins.
var brandPatterns = []pattern{
	newPattern(`WSOP`, "WSOP"),
	newPattern(`PAD`, "PAD"),
	newPattern(`MPP`, "MPP"),
	newPattern(`GOG|Game\s*of\s*Gold`, "GOG"),
	newPattern(`GGMillions?|GG\s*Millions?`, "GGMillions"),
	newPattern(`HCL|Hustler`, "HCL"),
	newPattern(`PokerGo`, "PokerGo"),
}

// Location patterns. The multi-token Las Vegas forms (including the
// underscore-separated spelling) must precede the bare LA rule so that
// LAS_VEGAS_ never resolves to Los Angeles. LA itself requires a trailing
// non-S character to stay distinct from Las Vegas abbreviations.
var locationPatterns = []pattern{
	newPattern(`EUROPE`, "Europe"),
	newPattern(`LAS[\s_]*VEGAS|\bLV\b`, "Las Vegas"),
	newPattern(`PARADISE`, "Paradise"),
	newPattern(`CYPRUS`, "Cyprus"),
	newPattern(`LONDON`, "London"),
	newPattern(`\bLA(?:\s|$|[^S])`, "Los Angeles"),
	newPattern(`ASIA`, "Asia"),
}

// Event-type patterns. Final Table outranks Main Event: a main-event final
// table is cataloged as the final table, and the day marker carries the
// rest. Super High Roller precedes High Roller for the same reason.
var eventTypePatterns = []pattern{
	newPattern(`FINAL\s*TABLE|FT(?:\d|_|\s|$)`, "Final Table"),
	newPattern(`SUPER\s*HIGH\s*ROLLER|SHR`, "Super High Roller"),
	newPattern(`MAIN\s*EVENT|ME(?:\d|_|\s|$)`, "Main Event"),
	newPattern(`BRACELET`, "Bracelet Event"),
	newPattern(`CIRCUIT`, "Circuit Event"),
	newPattern(`HIGH\s*ROLLER|HR(?:\d|_|\s|$)`, "High Roller"),
	newPattern(`MYSTERY\s*BOUNTY`, "Mystery Bounty"),
	newPattern(`BOUNTY`, "Bounty"),
	newPattern(`HEADS?\s*UP|HU(?:\d|_|\s|$)`, "Heads Up"),
	newPattern(`6[\s-]*MAX`, "6-Max"),
	newPattern(`PLO|Pot[\s-]*Limit[\s-]*Omaha`, "PLO"),
	newPattern(`NLH|No[\s-]*Limit[\s-]*Hold`, "NLH"),
	newPattern(`COLOSSUS`, "Colossus"),
	newPattern(`MONSTER\s*STACK`, "Monster Stack"),
}

// Content-type patterns.
var contentTypePatterns = []pattern{
	newPattern(`STREAM(?:ING)?`, "Stream"),
	newPattern(`SUBCLIP|Sub[\s-]*Clip`, "Subclip"),
	newPattern(`HAND[\s_]*(?:CLIP)?[\s_]*#?\d+`, "Hand Clip"),
	newPattern(`CLEAN`, "Clean Version"),
	newPattern(`NO[\s_]*COMMENTARY`, "No Commentary"),
	newPattern(`MASTERED`, "Mastered"),
	newPattern(`\bRAW\b`, "Raw"),
	newPattern(`GRAPHICS`, "With Graphics"),
}

// Series patterns, matched against the path only.
var seriesPatterns = []pattern{
	newPattern(`ARCHIVE|PRE-\d{4}`, "Archive"),
	newPattern(`Bracelet\s*Event`, "Bracelet Event"),
	newPattern(`Circuit\s*Event`, "Circuit Event"),
	newPattern(`Super\s*Circuit`, "Super Circuit"),
}

var (
	yearRe = regexp.MustCompile(`(?:^|[/_\s-])((?:19|20)\d{2})(?:[/_\s-]|$)`)

	// Buy-in alternatives: "$25K" / "25K GTD" / "$25,000". The K forms come
	// first so "$100K" resolves as thousands rather than a bare $100.
	buyInRe = regexp.MustCompile(`(?i)\$(\d+)K\b|(\d+)K\s*(?:GTD|NLH|PLO|Buy[\s-]*In)|\$(\d{1,3}(?:,\d{3})*)\s*(?:GTD|NLH|PLO|Buy[\s-]*In)?`)

	dayRe     = regexp.MustCompile(`(?i)Day\s*(\d+[A-D]?)|Final\s*(?:Day|Table)`)
	episodeRe = regexp.MustCompile(`(?i)Ep(?:isode)?[\s_-]*(\d+)|S(\d+)[\s_-]*EP?(\d+)`)

	// Player matchup: a capitalized first name, an optional surname, an
	// optional short card/hand token, then "vs" and the opponent's name.
	// The skip groups keep the match anchored at the first name, so
	// "Phil Ivey AhKh vs Tom Dwan" yields Phil and Tom.
	playerRe = regexp.MustCompile(`([A-Z][a-z]{2,})(?:\s+[A-Z][a-z]+)?(?:\s+[A-Za-z\d]{2,4})?\s+vs\.?\s+([A-Z][a-z]{2,})`)

	handNumberRe = regexp.MustCompile(`(?i)Hand[\s_]*#?(\d+)`)

	extensionRe    = regexp.MustCompile(`\.[^.]+$`)
	separatorRunRe = regexp.MustCompile(`[_-]+`)
	digitPrefixRe  = regexp.MustCompile(`^\d+\s*`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// cacheKey keeps path and filename as separate struct fields so the pair
// is unambiguous as a cache key.
type cacheKey struct {
	path     string
	filename string
}

// Extractor parses structured names into Metadata. Safe for concurrent use;
// the LRU cache is internally synchronized.
type Extractor struct {
	memo *lru.Cache[cacheKey, Metadata]
}

// New creates an Extractor with the default memoization capacity.
func New() (*Extractor, error) {
	memo, err := lru.New[cacheKey, Metadata](memoSize)
	if err != nil {
		return nil, fmt.Errorf("extract: creating memo cache: %w", err)
	}

	return &Extractor{memo: memo}, nil
}

// Extract parses path and filename into Metadata. Results are memoized on
// the (path, filename) pair.
func (e *Extractor) Extract(path, filename string) Metadata {
	key := cacheKey{path: path, filename: filename}

	if meta, ok := e.memo.Get(key); ok {
		return meta
	}

	meta := extract(path, filename)
	e.memo.Add(key, meta)

	return meta
}

// extract is the uncached implementation.
func extract(path, filename string) Metadata {
	combined := path + " " + filename

	// Underscore-joined filenames ("Hand_142_Phil_Ivey...") carry the same
	// structure as space-separated ones; flatten separators before matching
	// the filename-scoped patterns.
	flatName := separatorRunRe.ReplaceAllString(filename, " ")

	meta := Metadata{
		Brand:       firstMatch(brandPatterns, combined),
		Year:        extractYear(path),
		Location:    firstMatch(locationPatterns, combined),
		EventType:   firstMatch(eventTypePatterns, combined),
		ContentType: firstMatch(contentTypePatterns, combined),
		Series:      firstMatch(seriesPatterns, path),
		Day:         extractDay(flatName),
		Episode:     extractEpisode(flatName),
		BuyIn:       extractBuyIn(combined),
		Players:     extractPlayers(flatName),
	}

	meta.Tags = buildTags(meta)
	meta.DisplayTitle = buildTitle(meta, filename, flatName)

	return meta
}

func firstMatch(patterns []pattern, text string) string {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return p.label
		}
	}

	return ""
}

// extractYear returns the highest plausible four-digit year found in the
// path. Later seasons reuse footage from earlier years in their directory
// names, so the highest match wins.
func extractYear(path string) int {
	best := 0

	for _, m := range yearRe.FindAllStringSubmatch(path, -1) {
		year, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		if year >= minYear && year <= maxYear && year > best {
			best = year
		}
	}

	return best
}

func extractDay(filename string) string {
	m := dayRe.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}

	if m[1] != "" {
		return "Day " + strings.ToUpper(m[1])
	}

	return "Final Day"
}

func extractEpisode(filename string) string {
	m := episodeRe.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}

	if m[2] != "" && m[3] != "" {
		return fmt.Sprintf("S%s E%s", m[2], m[3])
	}

	if m[1] != "" {
		return "Episode " + m[1]
	}

	return ""
}

// extractBuyIn normalizes money amounts to "$X,XXX" or "$XK". The K form is
// used both for explicit K-suffixed amounts and for bare figures under 100,
// which in this corpus are always thousands shorthand.
func extractBuyIn(text string) string {
	m := buyInRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}

	// K-suffixed alternatives ($25K, 25K GTD).
	if m[1] != "" {
		return "$" + m[1] + "K"
	}

	if m[2] != "" {
		return "$" + m[2] + "K"
	}

	amount, err := strconv.ParseInt(strings.ReplaceAll(m[3], ",", ""), 10, 64)
	if err != nil {
		return ""
	}

	switch {
	case amount >= 1000:
		return "$" + humanize.Comma(amount)
	case amount < 100:
		return fmt.Sprintf("$%dK", amount)
	default:
		return fmt.Sprintf("$%d", amount)
	}
}

// extractPlayers returns the two sides of a "vs" matchup in match order,
// deduplicated.
func extractPlayers(filename string) []string {
	m := playerRe.FindStringSubmatch(filename)
	if m == nil {
		return nil
	}

	var players []string

	seen := make(map[string]bool)

	for _, name := range m[1:] {
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true
		players = append(players, name)
	}

	return players
}

// buildTags assembles the stable-ordered tag list: brand, year, location,
// event type, content type, buy-in, then players. Duplicates are dropped
// while preserving first occurrence order.
func buildTags(meta Metadata) []string {
	candidates := []string{meta.Brand, yearString(meta.Year), meta.Location,
		meta.EventType, meta.ContentType, meta.BuyIn}
	candidates = append(candidates, meta.Players...)

	var tags []string

	seen := make(map[string]bool)

	for _, tag := range candidates {
		if tag == "" || seen[tag] {
			continue
		}

		seen[tag] = true
		tags = append(tags, tag)
	}

	return tags
}

func yearString(year int) string {
	if year == 0 {
		return ""
	}

	return strconv.Itoa(year)
}

// Content types that describe what the asset is rather than a variant of
// it; these never appear parenthesized in titles.
var plainContentTypes = map[string]bool{
	"Stream":  true,
	"Subclip": true,
}

// buildTitle generates the display title. Hand clips with a known matchup
// get the "Hand #N: A vs B" form; otherwise the title concatenates the
// extracted fields in a fixed order, falling back to a cleaned filename
// when nothing was extracted.
func buildTitle(meta Metadata, filename, flatName string) string {
	if m := handNumberRe.FindStringSubmatch(flatName); m != nil && len(meta.Players) > 0 {
		return fmt.Sprintf("Hand #%s: %s", m[1], strings.Join(meta.Players, " vs "))
	}

	var parts []string

	appendPart := func(part string) {
		if part == "" {
			return
		}

		for _, existing := range parts {
			if strings.Contains(existing, part) {
				return
			}
		}

		parts = append(parts, part)
	}

	appendPart(meta.Brand)
	appendPart(meta.Location)
	appendPart(yearString(meta.Year))
	appendPart(meta.EventType)
	appendPart(meta.BuyIn)
	appendPart(meta.Day)
	appendPart(meta.Episode)

	if meta.ContentType != "" && !plainContentTypes[meta.ContentType] {
		parts = append(parts, "("+meta.ContentType+")")
	}

	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	return cleanFilename(filename)
}

// cleanFilename strips the extension and digit prefixes, converts
// separator runs to spaces, and collapses whitespace.
func cleanFilename(filename string) string {
	name := extensionRe.ReplaceAllString(filename, "")
	name = separatorRunRe.ReplaceAllString(name, " ")
	name = digitPrefixRe.ReplaceAllString(name, "")
	name = whitespaceRe.ReplaceAllString(name, " ")

	return strings.TrimSpace(name)
}

package plex

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SeasonUnknown is returned when no season can be inferred from a path.
const SeasonUnknown = -1

var (
	seasonFolderRegex = regexp.MustCompile(`(?i)^Season\s+(\d+)$`)
	specialsRegex     = regexp.MustCompile(`(?i)^Specials$`)
	episodeCodeRegex  = regexp.MustCompile(`(?i)S(\d{1,2})E\d{1,3}`)

	yearRegex    = regexp.MustCompile(`\(\s*\d{4}\s*\)`)
	bracketRegex = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}`)
)

// TitleMatch selects how a show folder name is compared with library titles.
type TitleMatch string

const (
	// TitleMatchFuzzy picks the show with the smallest edit distance.
	TitleMatchFuzzy TitleMatch = "fuzzy"
	// TitleMatchExact requires the normalized titles to be equal.
	TitleMatchExact TitleMatch = "exact"
)

// TitlePolicy configures show title matching. MaxDistance only applies to
// fuzzy matching; 0 means any distance is accepted.
type TitlePolicy struct {
	Mode        TitleMatch
	MaxDistance int
}

// InferSeasonIndex derives a season number from path segments. Segments are
// scanned from last to first for a "Season N" or "Specials" folder; failing
// that, the file name is tested for an SxxEyy code.
func InferSeasonIndex(segments []string) int {
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(segments[i])
		if m := seasonFolderRegex.FindStringSubmatch(seg); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
		if specialsRegex.MatchString(seg) {
			return 0
		}
	}

	if len(segments) == 0 {
		return SeasonUnknown
	}
	if m := episodeCodeRegex.FindStringSubmatch(segments[len(segments)-1]); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return SeasonUnknown
}

// DeriveShowTitle returns the show folder name for a .../Show/Season N/file
// layout, or "" when the path is too short.
func DeriveShowTitle(segments []string) string {
	if len(segments) < 3 {
		return ""
	}
	return strings.TrimSpace(segments[len(segments)-3])
}

// NormalizeTitle folds a title for comparison: lower case, accents removed,
// "(YYYY)" years and [..]/{..} tags dropped, punctuation and whitespace
// collapsed to single spaces.
func NormalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = yearRegex.ReplaceAllString(s, " ")
	s = bracketRegex.ReplaceAllString(s, " ")
	s = removeAccents(s)
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "'", "")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Slugify renders a title the way Plex builds its slug attribute.
func Slugify(title string) string {
	return strings.ReplaceAll(NormalizeTitle(title), " ", "-")
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// EditDistance is the case-insensitive Levenshtein distance between a and b.
func EditDistance(a, b string) int {
	return edlib.LevenshteinDistance(strings.ToLower(a), strings.ToLower(b))
}

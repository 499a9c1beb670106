package platform

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UntitledName is used when a title sanitizes to nothing
const UntitledName = "untitled"

var (
	disallowedFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._@-]+`)
	repeatedUnderscores     = regexp.MustCompile(`_+`)
)

// SanitizeFilename reduces a title to the restricted character set yt-dlp
// produces with --restrict-filenames: accents are folded, other non-ASCII runes
// dropped, and every run of disallowed characters becomes a single underscore.
func SanitizeFilename(name string) string {
	if name == "" {
		return UntitledName
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}

	ascii = disallowedFilenameChars.ReplaceAllString(ascii, "_")
	ascii = repeatedUnderscores.ReplaceAllString(ascii, "_")
	ascii = strings.Trim(ascii, "_")
	if ascii == "" {
		return UntitledName
	}
	return ascii
}

package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-harvest/models"
)

// MaxSubcategories is the number of subcatN columns filled from a URL path.
const MaxSubcategories = 5

// ValidateRecord ensures an adapter captured the fields every row needs.
func ValidateRecord(r models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if !r.Has("url") {
		return fmt.Errorf("record missing url")
	}
	if !r.Has("name") {
		return fmt.Errorf("record missing name for %s", r.Get("url"))
	}
	return nil
}

var priceNoise = strings.NewReplacer("Â£", "", "£", "", "$", "", "€", "", ",", "")

// NormalizePrice removes currency symbols, thousands separators and
// surrounding whitespace.
func NormalizePrice(price string) string {
	return strings.TrimSpace(priceNoise.Replace(strings.TrimSpace(price)))
}

var spaces = regexp.MustCompile(`\s+`)

// NormalizeText collapses runs of whitespace into single spaces.
func NormalizeText(text string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

// CategoryPath fills cat and subcat1..subcat5 from the path segments of
// rawURL, in order. Missing levels are left empty.
func CategoryPath(rawURL string) map[string]string {
	out := map[string]string{"cat": ""}
	for i := 1; i <= MaxSubcategories; i++ {
		out[fmt.Sprintf("subcat%d", i)] = ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return out
	}
	var segments []string
	for _, s := range strings.Split(parsed.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	for i, s := range segments {
		if i == 0 {
			out["cat"] = s
			continue
		}
		if i > MaxSubcategories {
			break
		}
		out[fmt.Sprintf("subcat%d", i)] = s
	}
	return out
}

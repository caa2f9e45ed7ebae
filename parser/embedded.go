package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/kaptinlin/jsonrepair"
)

// DecodeJSON unmarshals content into v, repairing malformed JSON (trailing
// commas, single quotes, bare undefined) before giving up.
func DecodeJSON(content string, v any) error {
	err := json.Unmarshal([]byte(content), v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(strings.ReplaceAll(content, "undefined", "null"))
	if repairErr != nil {
		return fmt.Errorf("unmarshal embedded json: %w (repair: %v)", err, repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("unmarshal repaired json: %w", err)
	}
	return nil
}

// NextData returns the decoded __NEXT_DATA__ payload of a page.
func NextData(doc *goquery.Document) (map[string]any, error) {
	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return nil, fmt.Errorf("page has no __NEXT_DATA__ script")
	}
	var data map[string]any
	if err := DecodeJSON(script.Text(), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// JSONLD returns every JSON-LD object on the page whose @type is typ.
// Arrays and @graph containers are flattened.
func JSONLD(doc *goquery.Document, typ string) []map[string]any {
	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := DecodeJSON(s.Text(), &raw); err != nil {
			return
		}
		collectLD(raw, typ, &out)
	})
	return out
}

func collectLD(node any, typ string, out *[]map[string]any) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			collectLD(item, typ, out)
		}
	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			collectLD(graph, typ, out)
		}
		if hasType(v["@type"], typ) {
			*out = append(*out, v)
		}
	}
}

func hasType(value any, typ string) bool {
	switch t := value.(type) {
	case string:
		return strings.EqualFold(t, typ)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, typ) {
				return true
			}
		}
	}
	return false
}

// Markdown converts an HTML fragment to markdown. Plain text passes through
// unchanged apart from whitespace trimming.
func Markdown(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return NormalizeText(fragment)
	}
	return strings.TrimSpace(md)
}

// Lookup walks a decoded JSON tree by object keys. A key ending in "(" is
// matched as a prefix, which suits Apollo cache entries like
// "deviceBundle({...})".
func Lookup(root any, path ...string) (any, bool) {
	current := root
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if strings.HasSuffix(key, "(") {
			found := false
			for k, v := range obj {
				if strings.HasPrefix(k, key) {
					current, found = v, true
					break
				}
			}
			if !found {
				return nil, false
			}
			continue
		}
		if current, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

// String renders a scalar JSON value as text.
func String(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	case bool:
		if v {
			return "Y"
		}
		return "N"
	default:
		return fmt.Sprint(v)
	}
}

package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-harvest/models"
	"github.com/aluiziolira/go-harvest/parser"
)

const (
	maxImages     = 5
	maxAttributes = 20
)

// PageFetcher retrieves a page body. *fetcher.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) (string, error)
}

// ProcessFunc has the same shape as pipeline.ProcessFunc.
type ProcessFunc = func(ctx context.Context, url string) (models.Record, error)

// ProductAdapter turns product pages carrying JSON-LD Product markup into
// records laid out for models.StandardSchema.
type ProductAdapter struct {
	fetcher         PageFetcher
	source          string
	now             func() time.Time
	variantPricing  bool
	variantEndpoint string
}

// ProductOption configures a ProductAdapter.
type ProductOption func(*ProductAdapter)

// WithVariantPricing prices each page's device variants through the
// GraphQL endpoint. An empty endpoint uses the default route.
func WithVariantPricing(endpoint string) ProductOption {
	return func(a *ProductAdapter) {
		a.variantPricing = true
		a.variantEndpoint = endpoint
	}
}

// NewProductAdapter creates an adapter that stamps records with source.
func NewProductAdapter(f PageFetcher, source string, opts ...ProductOption) *ProductAdapter {
	a := &ProductAdapter{fetcher: f, source: source, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Bind returns a process function for the worker pool that resolves brands
// against hctx.
func (a *ProductAdapter) Bind(hctx *models.HarvestContext) ProcessFunc {
	return func(ctx context.Context, pageURL string) (models.Record, error) {
		html, err := a.fetcher.Fetch(ctx, models.NewGet(pageURL, models.CategoryProduct))
		if err != nil {
			return nil, err
		}
		rec, err := a.Extract(pageURL, html, hctx)
		if err != nil || !a.variantPricing {
			return rec, err
		}
		return a.priceVariants(ctx, pageURL, html, rec, hctx)
	}
}

// Extract builds a record from a fetched page. It returns a nil record when
// the page has no Product markup.
func (a *ProductAdapter) Extract(pageURL, html string, hctx *models.HarvestContext) (models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse product page %s: %w", pageURL, err)
	}
	products := parser.JSONLD(doc, "Product")
	if len(products) == 0 {
		slog.Debug("No product markup found", "url", pageURL)
		return nil, nil
	}
	p := products[0]

	rec := models.Record{
		"source": a.source,
		"date":   a.now().Format("2006-01-02"),
		"url":    pageURL,
		"name":   parser.NormalizeText(parser.String(p["name"])),
		"sku":    firstNonEmpty(p, "sku", "productID", "mpn"),
		"brand":  canonicalBrand(brandName(p["brand"]), hctx),
		"desc":   parser.Markdown(parser.String(p["description"])),
	}
	if rec["sku"] == "" {
		rec["sku"] = skuFromURL(pageURL)
	}
	for k, v := range parser.CategoryPath(pageURL) {
		rec[k] = v
	}

	offerFields(rec, p["offers"])
	for i, img := range images(p["image"]) {
		rec["image"+strconv.Itoa(i+1)] = img
	}
	if rating, ok := p["aggregateRating"].(map[string]any); ok {
		rec["reviewCount"] = firstNonEmpty(rating, "reviewCount", "ratingCount")
		rec["reviewRating"] = parser.String(rating["ratingValue"])
	}
	attributes(rec, p["additionalProperty"])

	if err := parser.ValidateRecord(rec); err != nil {
		return nil, fmt.Errorf("product %s: %w", pageURL, err)
	}
	return rec, nil
}

func firstNonEmpty(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := parser.String(obj[k]); v != "" {
			return v
		}
	}
	return ""
}

func brandName(v any) string {
	switch b := v.(type) {
	case map[string]any:
		return parser.String(b["name"])
	case []any:
		if len(b) > 0 {
			return brandName(b[0])
		}
	}
	return parser.String(v)
}

func canonicalBrand(name string, hctx *models.HarvestContext) string {
	if name == "" || hctx == nil {
		return name
	}
	if b, ok := hctx.Brands[strings.ToLower(name)]; ok && b.Name != "" {
		return b.Name
	}
	return name
}

func skuFromURL(pageURL string) string {
	trimmed := strings.TrimRight(strings.SplitN(pageURL, "?", 2)[0], "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		last := trimmed[i+1:]
		if strings.ContainsAny(last, "0123456789") {
			return last
		}
	}
	return ""
}

func offerFields(rec models.Record, raw any) {
	var offer map[string]any
	switch o := raw.(type) {
	case map[string]any:
		offer = o
	case []any:
		if len(o) > 0 {
			offer, _ = o[0].(map[string]any)
		}
	}
	if offer == nil {
		return
	}
	price := firstNonEmpty(offer, "price", "lowPrice")
	rec["price"] = parser.NormalizePrice(price)
	if high := parser.String(offer["highPrice"]); high != "" && high != price {
		rec["previousPrice"] = parser.NormalizePrice(high)
		rec["onSale"] = "Y"
	}
	if warranty := parser.String(offer["warranty"]); warranty != "" {
		rec["warranty"] = warranty
	}
}

func images(raw any) []string {
	var out []string
	add := func(v any) {
		if len(out) >= maxImages {
			return
		}
		if obj, ok := v.(map[string]any); ok {
			v = obj["url"]
		}
		if s := parser.String(v); s != "" {
			out = append(out, s)
		}
	}
	if list, ok := raw.([]any); ok {
		for _, v := range list {
			add(v)
		}
		return out
	}
	add(raw)
	return out
}

func attributes(rec models.Record, raw any) {
	list, _ := raw.([]any)
	n := 0
	for _, item := range list {
		if n == maxAttributes {
			return
		}
		prop, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title := parser.String(prop["name"])
		value := parser.NormalizeText(parser.String(prop["value"]))
		if title == "" || value == "" {
			continue
		}
		n++
		idx := strconv.Itoa(n)
		rec["attributeTitle"+idx] = title
		rec["attributeValue"+idx] = value
		rec["attributeType"+idx] = "SPECIFICATION"
	}
}

package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aluiziolira/go-harvest/models"
	"github.com/aluiziolira/go-harvest/parser"
)

// variantQuote is the part of a variant pricing response a record needs.
type variantQuote struct {
	request VariantRequest
	code    string
	name    string
	brand   string
	inStock bool
	price   float64
}

// priceVariants fetches a pricing response for every variant on the page
// and folds the best quote into rec. In-stock variants win over
// out-of-stock ones, then the lowest price wins. A page without variant
// data keeps rec unchanged.
func (a *ProductAdapter) priceVariants(ctx context.Context, pageURL, html string, rec models.Record, hctx *models.HarvestContext) (models.Record, error) {
	requests, err := VariantRequests(pageURL, html, a.variantEndpoint)
	if err != nil {
		slog.Debug("no variant data on page", slog.String("url", pageURL), slog.Any("error", err))
		return rec, nil
	}

	var best *variantQuote
	for _, vr := range requests {
		body, err := a.fetcher.Fetch(ctx, vr.Request)
		if err != nil {
			slog.Warn("variant pricing request failed",
				slog.String("url", pageURL),
				slog.String("kind", string(vr.Kind)),
				slog.Any("error", err),
			)
			continue
		}
		q, err := parseVariantQuote(body)
		if err != nil {
			slog.Warn("variant pricing response unreadable", slog.String("url", pageURL), slog.Any("error", err))
			continue
		}
		q.request = vr
		if best == nil || better(q, *best) {
			best = &q
		}
	}
	if best == nil {
		return rec, nil
	}

	if rec == nil {
		rec = models.Record{
			"source": a.source,
			"date":   a.now().Format("2006-01-02"),
			"url":    pageURL,
		}
		for k, v := range parser.CategoryPath(pageURL) {
			rec[k] = v
		}
	}
	rec["apiURL"] = best.request.Request.FullURL()
	rec["price"] = strconv.FormatFloat(best.price, 'f', 2, 64)
	setIfEmpty(rec, "sku", best.code)
	setIfEmpty(rec, "name", best.name)
	setIfEmpty(rec, "brand", canonicalBrand(best.brand, hctx))

	dims := best.request.Dimensions
	addAttribute(rec, "Colour", dims.Color, "VARIANT")
	addAttribute(rec, "Capacity", dims.Capacity, "VARIANT")
	addAttribute(rec, "Screen size", dims.WatchScreenSize, "VARIANT")
	addAttribute(rec, "Variants", strconv.Itoa(len(requests)), "VARIANT")

	if err := parser.ValidateRecord(rec); err != nil {
		return nil, fmt.Errorf("product %s: %w", pageURL, err)
	}
	return rec, nil
}

func parseVariantQuote(body string) (variantQuote, error) {
	var data map[string]any
	if err := parser.DecodeJSON(body, &data); err != nil {
		return variantQuote{}, err
	}
	product, ok := parser.Lookup(data, "data", "deviceBundle", "product")
	if !ok {
		return variantQuote{}, fmt.Errorf("response has no device bundle product")
	}
	stock, _ := parser.Lookup(product, "stock", "message")
	q := variantQuote{
		code:    parser.String(mustLookup(product, "code")),
		name:    parser.String(mustLookup(product, "name")),
		brand:   parser.String(mustLookup(product, "manufacturer")),
		inStock: parser.String(stock) == "In stock",
	}

	combos, _ := parser.Lookup(data, "data", "deviceBundle", "productPlanCombinations")
	list, _ := combos.([]any)
	if len(list) == 0 {
		return variantQuote{}, fmt.Errorf("response has no plan combinations")
	}
	price, ok := parser.Lookup(list[0], "productPrice", "payTodayPrice")
	if !ok {
		return variantQuote{}, fmt.Errorf("response has no pay-today price")
	}
	value, err := strconv.ParseFloat(parser.String(price), 64)
	if err != nil {
		return variantQuote{}, fmt.Errorf("parse price: %w", err)
	}
	q.price = value
	return q, nil
}

func mustLookup(root any, key string) any {
	v, _ := parser.Lookup(root, key)
	return v
}

func better(a, b variantQuote) bool {
	if a.inStock != b.inStock {
		return a.inStock
	}
	return a.price < b.price
}

func setIfEmpty(rec models.Record, field, value string) {
	if !rec.Has(field) && value != "" {
		rec[field] = value
	}
}

// addAttribute stores title/value in the first free attribute slot.
func addAttribute(rec models.Record, title, value, typ string) {
	if value == "" {
		return
	}
	for i := 1; i <= maxAttributes; i++ {
		idx := strconv.Itoa(i)
		if rec.Has("attributeTitle" + idx) {
			continue
		}
		rec["attributeTitle"+idx] = title
		rec["attributeValue"+idx] = value
		rec["attributeType"+idx] = typ
		return
	}
}

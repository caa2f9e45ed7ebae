// Package adapter holds reference site adapters used by the CLI. They turn
// product pages into records and classify product variants into the API
// request shape needed to price them.
package adapter

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-harvest/models"
	"github.com/aluiziolira/go-harvest/parser"
)

// Kind is a product variant family.
type Kind string

const (
	KindPhoneBundle     Kind = "phone_bundle"
	KindBroadbandBundle Kind = "broadband_bundle"
	KindWearable        Kind = "wearable"
	KindTablet          Kind = "tablet"
	KindUnknown         Kind = "unknown"
)

// Persisted GraphQL query identifiers.
const (
	flexPayOperation    = "FlexPayProductDetailsQuery"
	productOperation    = "ProductDetailsQuery"
	flexPayQueryHash    = "74a0a54b03ccd740c5a3e7f5767146b2a10a7f45e5874074328b1b63fb61f59e"
	productDetailsHash  = "4d049d3a7d5913eac7aa4467610512496e76cad121b46e896f143f50594c2846"
	defaultGraphQLRoute = "https://ee.co.uk/graphql"
)

// Dimensions are the variant attributes exposed by a product page.
type Dimensions struct {
	Color           string
	Capacity        string
	WatchScreenSize string
}

// VariantParams carries everything a RequestBuilder needs.
type VariantParams struct {
	Endpoint         string
	PageURL          string
	BaseProductSeoID string
	Dimensions       Dimensions
}

// RequestBuilder produces the pricing request for one variant family.
type RequestBuilder func(VariantParams) (models.FetchRequest, error)

var builders = map[Kind]RequestBuilder{
	KindPhoneBundle: func(p VariantParams) (models.FetchRequest, error) {
		return persistedQuery(p, flexPayOperation, flexPayQueryHash, "pay-monthly-phones",
			dimension{"capacity", p.Dimensions.Capacity}, dimension{"color", p.Dimensions.Color})
	},
	KindBroadbandBundle: func(p VariantParams) (models.FetchRequest, error) {
		return persistedQuery(p, flexPayOperation, flexPayQueryHash, "pay-monthly-mobile-broadband",
			dimension{"color", p.Dimensions.Color})
	},
	KindWearable: func(p VariantParams) (models.FetchRequest, error) {
		_, rest, ok := strings.Cut(p.PageURL, "pay-monthly-")
		if !ok {
			return models.FetchRequest{}, fmt.Errorf("wearable url %q has no pay-monthly segment", p.PageURL)
		}
		seo, _, _ := strings.Cut(rest, "-gallery")
		return persistedQuery(p, productOperation, productDetailsHash, "pay-monthly-"+seo,
			dimension{"watchScreenSize", p.Dimensions.WatchScreenSize}, dimension{"color", p.Dimensions.Color})
	},
	KindTablet: func(p VariantParams) (models.FetchRequest, error) {
		return persistedQuery(p, flexPayOperation, productDetailsHash, "add-pay-monthly-tablets",
			dimension{"capacity", p.Dimensions.Capacity}, dimension{"color", p.Dimensions.Color})
	},
}

// Classify maps a product URL and its dimensions to a variant family. The
// rules are checked in order and the first match wins.
func Classify(pageURL string, dims Dimensions) Kind {
	switch {
	case dims.Capacity != "" && !strings.Contains(pageURL, "tablet"):
		return KindPhoneBundle
	case strings.Contains(pageURL, "broadband"):
		return KindBroadbandBundle
	case strings.Contains(pageURL, "wearables"):
		return KindWearable
	case strings.Contains(pageURL, "computing-tablets"):
		return KindTablet
	default:
		return KindUnknown
	}
}

// BuildRequest returns the pricing request for kind.
func BuildRequest(kind Kind, p VariantParams) (models.FetchRequest, error) {
	build, ok := builders[kind]
	if !ok {
		return models.FetchRequest{}, fmt.Errorf("no request builder for variant kind %q", kind)
	}
	if p.Endpoint == "" {
		p.Endpoint = defaultGraphQLRoute
	}
	return build(p)
}

// VariantRequest pairs a classified variant with its pricing request.
type VariantRequest struct {
	Kind       Kind
	Dimensions Dimensions
	Request    models.FetchRequest
}

// VariantRequests reads the variant list embedded in a product page and
// builds one pricing request per variant. Variants of unknown kind are
// skipped.
func VariantRequests(pageURL, html, endpoint string) ([]VariantRequest, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}
	data, err := parser.NextData(doc)
	if err != nil {
		return nil, err
	}

	bundlePath := []string{"props", "apolloState", "ROOT_QUERY", "deviceBundle("}
	seoID, _ := parser.Lookup(data, append(bundlePath, "product", "baseDeviceSeoId")...)
	variants, ok := parser.Lookup(data, append(bundlePath, "deviceBundleVariants")...)
	if !ok {
		return nil, fmt.Errorf("product page has no device bundle variants")
	}
	list, _ := variants.([]any)

	out := make([]VariantRequest, 0, len(list))
	for _, v := range list {
		dimsRaw, _ := parser.Lookup(v, "product", "dimensions")
		dims := dimensionsOf(dimsRaw)
		kind := Classify(pageURL, dims)
		if kind == KindUnknown {
			continue
		}
		req, err := BuildRequest(kind, VariantParams{
			Endpoint:         endpoint,
			PageURL:          pageURL,
			BaseProductSeoID: parser.String(seoID),
			Dimensions:       dims,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, VariantRequest{Kind: kind, Dimensions: dims, Request: req})
	}
	return out, nil
}

func dimensionsOf(raw any) Dimensions {
	var dims Dimensions
	list, _ := raw.([]any)
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		value := parser.String(entry["value"])
		switch parser.String(entry["key"]) {
		case "color":
			dims.Color = value
		case "capacity":
			dims.Capacity = value
		case "watchScreenSize":
			dims.WatchScreenSize = value
		}
	}
	return dims
}

type dimension struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type bundleInput struct {
	BundleSeoID      string      `json:"bundleSeoId"`
	BaseProductSeoID string      `json:"baseProductSeoId"`
	Dimensions       []dimension `json:"dimensions"`
}

func persistedQuery(p VariantParams, operation, hash, bundleSeoID string, dims ...dimension) (models.FetchRequest, error) {
	variables, err := json.Marshal(map[string]bundleInput{
		"deviceBundleBySeoInput": {
			BundleSeoID:      bundleSeoID,
			BaseProductSeoID: p.BaseProductSeoID,
			Dimensions:       dims,
		},
	})
	if err != nil {
		return models.FetchRequest{}, fmt.Errorf("encode variables: %w", err)
	}
	extensions := fmt.Sprintf(`{"persistedQuery":{"version":1,"sha256Hash":"%s"}}`, hash)

	params := url.Values{}
	params.Set("operationName", operation)
	params.Set("variables", string(variables))
	params.Set("extensions", extensions)
	return models.FetchRequest{
		URL:      p.Endpoint,
		Category: models.CategoryProduct,
		Method:   models.MethodGet,
		Params:   params,
	}, nil
}

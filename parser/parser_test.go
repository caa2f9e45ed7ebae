package parser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-harvest/models"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  models.Record
		wantErr bool
	}{
		{
			name:    "valid record",
			record:  models.Record{"url": "https://shop.test/p/1", "name": "Phone", "sku": "A1"},
			wantErr: false,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: true,
		},
		{
			name:    "missing url",
			record:  models.Record{"name": "Phone"},
			wantErr: true,
		},
		{
			name:    "blank name",
			record:  models.Record{"url": "https://shop.test/p/1", "name": "  "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"£10.00", "10.00"},
		{"Â£51.77", "51.77"},
		{"  $1,299.99 ", "1299.99"},
		{"€5", "5"},
		{"", ""},
	}

	for _, tt := range tests {
		if result := NormalizePrice(tt.input); result != tt.expected {
			t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestCategoryPath(t *testing.T) {
	got := CategoryPath("https://shop.test/mobile/phones/apple/iphone-15/?x=1")
	want := map[string]string{
		"cat": "mobile", "subcat1": "phones", "subcat2": "apple", "subcat3": "iphone-15",
		"subcat4": "", "subcat5": "",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	deep := CategoryPath("https://shop.test/a/b/c/d/e/f/g/h")
	if deep["subcat5"] != "f" {
		t.Errorf("subcat5 = %q, want f", deep["subcat5"])
	}
}

func TestDecodeJSONRepairs(t *testing.T) {
	var v map[string]any
	if err := DecodeJSON(`{"a": 1, "b": undefined,}`, &v); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if v["a"].(float64) != 1 || v["b"] != nil {
		t.Fatalf("unexpected decode: %v", v)
	}
}

func TestNextDataAndLookup(t *testing.T) {
	html := `<html><body><script id="__NEXT_DATA__" type="application/json">
{"props":{"apolloState":{"ROOT_QUERY":{"deviceBundle({\"seo\":\"x\"})":{"product":{"baseDeviceSeoId":"iphone-15"},"price":12.5}}}}}
</script></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	data, err := NextData(doc)
	if err != nil {
		t.Fatalf("NextData: %v", err)
	}

	seo, ok := Lookup(data, "props", "apolloState", "ROOT_QUERY", "deviceBundle(", "product", "baseDeviceSeoId")
	if !ok || String(seo) != "iphone-15" {
		t.Fatalf("lookup seo = %v, %v", seo, ok)
	}
	price, _ := Lookup(data, "props", "apolloState", "ROOT_QUERY", "deviceBundle(", "price")
	if String(price) != "12.5" {
		t.Fatalf("price = %q", String(price))
	}
	if _, ok := Lookup(data, "props", "missing"); ok {
		t.Fatal("lookup of missing key should fail")
	}
}

func TestJSONLDFindsProducts(t *testing.T) {
	html := `<html><head>
<script type="application/ld+json">{"@type":"BreadcrumbList"}</script>
<script type="application/ld+json">{"@graph":[{"@type":"Product","name":"Watch","sku":"W1",}]}</script>
<script type="application/ld+json">[{"@type":["Thing","Product"],"name":"Tablet"}]</script>
</head></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	products := JSONLD(doc, "Product")
	if len(products) != 2 {
		t.Fatalf("found %d products, want 2", len(products))
	}
	if products[0]["name"] != "Watch" || products[1]["name"] != "Tablet" {
		t.Fatalf("unexpected products: %v", products)
	}
}

func TestMarkdown(t *testing.T) {
	if got := Markdown("  plain text "); got != "plain text" {
		t.Errorf("plain = %q", got)
	}
	got := Markdown("<p>Fast <strong>5G</strong> phone</p>")
	if !strings.Contains(got, "**5G**") {
		t.Errorf("markdown = %q, want bold 5G", got)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{" x ", "x"},
		{float64(10), "10"},
		{0.0, "0"},
		{true, "Y"},
	}
	for _, tt := range tests {
		if got := String(tt.in); got != tt.want {
			t.Errorf("String(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

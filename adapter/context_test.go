package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-harvest/models"
)

func TestContextExtractor(t *testing.T) {
	urls := []string{
		"https://shop.test/brands/apple",
		"https://shop.test/brands/google-pixel",
		"https://shop.test/brands/",
		"https://shop.test/phones",
		"https://shop.test/phones/smart-phones",
		"https://shop.test/phones/smart-phones/android",
		"https://shop.test/phones/basic-phones",
		"https://shop.test/tablets/ipad/pro/extra",
		"not a url",
	}

	hctx := ContextExtractor{}.Extract(urls)

	require.Equal(t, []models.Brand{
		{Name: "Apple", URL: "https://shop.test/brands/apple"},
		{Name: "Google Pixel", URL: "https://shop.test/brands/google-pixel"},
	}, BrandList(hctx.Brands))
	require.Contains(t, hctx.Brands, "google pixel")

	cats := CategoryList(hctx.Categories)
	require.Len(t, cats, 2)
	require.Equal(t, "Phones", cats[0].Name)
	require.Equal(t, "https://shop.test/phones", cats[0].URL)
	require.Len(t, cats[0].Children, 2)
	require.Equal(t, "Smart Phones", cats[0].Children[0].Name)
	require.Equal(t, "https://shop.test/phones/smart-phones/android", cats[0].Children[0].Children[0].URL)
	require.Equal(t, "Basic Phones", cats[0].Children[1].Name)

	tablets := cats[1]
	require.Equal(t, "Tablets", tablets.Name)
	require.Len(t, tablets.Children[0].Children, 1)
	require.Empty(t, tablets.Children[0].Children[0].Children)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Smart Watches", displayName("smart-watches"))
	require.Equal(t, "Écran", displayName("écran"))
	require.Equal(t, "A B", displayName("a__b"))
}

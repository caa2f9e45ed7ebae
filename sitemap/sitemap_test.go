package sitemap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-harvest/models"
)

type stubFetcher struct {
	bodies map[string]string
	calls  []models.FetchRequest
}

func (s *stubFetcher) Fetch(_ context.Context, req models.FetchRequest) (string, error) {
	s.calls = append(s.calls, req)
	body, ok := s.bodies[req.URL]
	if !ok {
		return "", errors.New("unreachable")
	}
	return body, nil
}

const namespacedSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:image="http://www.google.com/schemas/sitemap-image/1.1">
  <url><loc> https://shop.test/p/1 </loc><image:image><image:loc>https://cdn.test/1.jpg</image:loc></image:image></url>
  <url><loc>https://shop.test/p/2</loc></url>
  <url><loc></loc></url>
  <url><loc>https://shop.test/p/3</loc></url>
</urlset>`

const bareSitemap = `<urlset>
  <url><loc>https://shop.test/a</loc></url>
  <url><loc>https://shop.test/b</loc></url>
</urlset>`

func TestParseOrderAndNamespaces(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "namespaced",
			body: namespacedSitemap,
			want: []string{"https://shop.test/p/1", "https://shop.test/p/2", "https://shop.test/p/3"},
		},
		{
			name: "no namespace",
			body: bareSitemap,
			want: []string{"https://shop.test/a", "https://shop.test/b"},
		},
		{
			name: "empty urlset",
			body: `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.body)
			require.NoError(t, err)
			require.Equal(t, tt.want, doc.Locs)
			require.False(t, doc.Index)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("<urlset><url><loc>x</url>")
	require.Error(t, err)
}

func TestResolveNeverFails(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{
		"https://shop.test/broken.xml": "<urlset><url>",
	}}
	r := NewResolver(f)

	require.Empty(t, r.Resolve(context.Background(), "https://shop.test/missing.xml"))
	require.Empty(t, r.Resolve(context.Background(), "https://shop.test/broken.xml"))
	require.Equal(t, models.CategorySitemap, f.calls[0].Category)
}

func TestResolveAllConcatenatesInOrderAndSaves(t *testing.T) {
	dir := t.TempDir()
	f := &stubFetcher{bodies: map[string]string{
		"https://shop.test/one.xml": namespacedSitemap,
		"https://shop.test/two.xml": bareSitemap,
	}}
	r := NewResolver(f, WithOutputDir(dir))

	got := r.ResolveAll(context.Background(), []string{
		"https://shop.test/two.xml",
		"https://shop.test/missing.xml",
		"https://shop.test/one.xml",
	})
	want := []string{
		"https://shop.test/a", "https://shop.test/b",
		"https://shop.test/p/1", "https://shop.test/p/2", "https://shop.test/p/3",
	}
	require.Equal(t, want, got)

	saved, err := LoadURLList(filepath.Join(dir, ListFile))
	require.NoError(t, err)
	require.Equal(t, want, saved)
}

func TestResolveFollowsIndex(t *testing.T) {
	index := `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://shop.test/two.xml</loc></sitemap>
  <sitemap><loc>https://shop.test/index.xml</loc></sitemap>
  <sitemap><loc>https://shop.test/one.xml</loc></sitemap>
</sitemapindex>`
	f := &stubFetcher{bodies: map[string]string{
		"https://shop.test/index.xml": index,
		"https://shop.test/one.xml":   namespacedSitemap,
		"https://shop.test/two.xml":   bareSitemap,
	}}

	flat := NewResolver(f).Resolve(context.Background(), "https://shop.test/index.xml")
	require.Equal(t, []string{"https://shop.test/two.xml", "https://shop.test/index.xml", "https://shop.test/one.xml"}, flat)

	followed := NewResolver(f, WithFollowIndex(true)).Resolve(context.Background(), "https://shop.test/index.xml")
	require.Equal(t, []string{
		"https://shop.test/a", "https://shop.test/b",
		"https://shop.test/p/1", "https://shop.test/p/2", "https://shop.test/p/3",
	}, followed)
}

func TestResolveFeed(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>new</title>
  <item><title>A</title><link>https://shop.test/p/a</link></item>
  <item><title>B</title><link>https://shop.test/p/b</link></item>
</channel></rss>`
	f := &stubFetcher{bodies: map[string]string{"https://shop.test/feed": rss}}
	r := NewResolver(f)

	require.Equal(t, []string{"https://shop.test/p/a", "https://shop.test/p/b"}, r.ResolveFeed(context.Background(), "https://shop.test/feed"))
	require.Empty(t, r.ResolveFeed(context.Background(), "https://shop.test/none"))
}

func TestURLListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "product_urls.txt")
	require.NoError(t, SaveURLList(path, []string{"https://shop.test/1", "https://shop.test/2"}))

	urls, err := LoadURLList(path)
	require.NoError(t, err)
	require.Equal(t, []string{"https://shop.test/1", "https://shop.test/2"}, urls)

	_, err = LoadURLList(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

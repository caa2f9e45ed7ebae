package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-harvest/fetcher"
	"github.com/aluiziolira/go-harvest/models"
	"github.com/aluiziolira/go-harvest/pipeline"
)

func newShop(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/phones/p-100</loc></url>
  <url><loc>%[1]s/phones/p-200</loc></url>
</urlset>`, srv.URL)
	})
	mux.HandleFunc("/phones/", func(w http.ResponseWriter, r *http.Request) {
		sku := filepath.Base(r.URL.Path)
		fmt.Fprintf(w, `<html><head><script type="application/ld+json">
{"@type":"Product","name":"Phone %[1]s","sku":"%[1]s","offers":{"price":"99.00"}}
</script></head></html>`, sku)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "harvest.yaml")
	content := fmt.Sprintf(`min_delay_seconds: 0
max_delay_seconds: 0
cache_dir: %q
output_dir: %q
log_file: ""
`, filepath.Join(dir, "cache"), filepath.Join(dir, "out"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCommand(t *testing.T) {
	srv := newShop(t)
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{
		"run", "--config", writeConfig(t, dir),
		"--sitemap", srv.URL + "/sitemap.xml",
		"--source-name", "shop",
		"--no-progress",
	})
	require.NoError(t, root.Execute())

	store := pipeline.NewTabularStore(filepath.Join(dir, "out", "products.csv"), models.StandardSchema)
	records, err := store.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "shop", records[0]["source"])
	require.Equal(t, "99.00", records[0]["price"])
	require.FileExists(t, filepath.Join(dir, "out", "product_urls.txt"))
}

func TestRunCommandRequiresSitemap(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", writeConfig(t, dir)})
	require.Error(t, root.Execute())
}

func TestResolveCommand(t *testing.T) {
	srv := newShop(t)
	dir := t.TempDir()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"resolve", "--config", writeConfig(t, dir), srv.URL + "/sitemap.xml"})
	require.NoError(t, root.Execute())
	require.Equal(t, srv.URL+"/phones/p-100\n"+srv.URL+"/phones/p-200\n", out.String())
}

func TestFetchCommand(t *testing.T) {
	srv := newShop(t)
	dir := t.TempDir()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"fetch", "--config", writeConfig(t, dir), "--category", "product", srv.URL + "/phones/p-1"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), `"sku":"p-1"`)
	require.FileExists(t, filepath.Join(dir, "cache", "products", fetcher.Slug(srv.URL+"/phones/p-1")+".html"))
}

func TestInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"fetch", "--config", path, "http://127.0.0.1:1/"})
	require.Error(t, root.Execute())
}

package fetcher

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
)

func TestSlug(t *testing.T) {
	require.Equal(t, "plain-key_1.xml", Slug("plain-key_1.xml"))

	query := Slug("https://shop.test/p?id=1")
	path := Slug("https://shop.test/p/id=1")
	require.True(t, strings.HasPrefix(query, "https___shop.test_p_id_1_"))
	require.Len(t, query, len("https___shop.test_p_id_1")+1+slugHashLen)
	require.NotEqual(t, query, path)
	require.Equal(t, query, Slug("https://shop.test/p?id=1"))

	long := "https://shop.test/" + strings.Repeat("x", 300)
	other := "https://shop.test/" + strings.Repeat("x", 299) + "y"
	s1, s2 := Slug(long), Slug(other)
	require.Len(t, s1, slugPrefixLen+1+slugHashLen)
	require.NotEqual(t, s1, s2)
	require.Equal(t, s1, Slug(long))
}

func TestCachePathsByCategory(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, 0, nil)
	require.NoError(t, err)

	tests := []struct {
		category models.Category
		want     string
	}{
		{models.CategorySitemap, filepath.Join(dir, "sitemaps", "a.xml")},
		{models.CategoryCategory, filepath.Join(dir, "categories", "a.html")},
		{models.CategoryProduct, filepath.Join(dir, "products", "a.html")},
		{models.CategoryGeneric, filepath.Join(dir, "generic", "a.html")},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, c.Path(tt.category, "a"))
	}
}

func TestCacheMemoryTierCountsHits(t *testing.T) {
	m := metrics.New()
	c, err := NewCache(t.TempDir(), 8, m)
	require.NoError(t, err)

	_, ok := c.Get(models.CategoryProduct, "k")
	require.False(t, ok)

	require.NoError(t, c.Put(models.CategoryProduct, "k", "v"))
	body, ok := c.Get(models.CategoryProduct, "k")
	require.True(t, ok)
	require.Equal(t, "v", body)

	_, ok = c.Get(models.CategorySitemap, "k")
	require.False(t, ok)
}

func TestRetryPolicyNonDecreasing(t *testing.T) {
	jitters := []float64{0.5, 0, 0.99, 0, 0.5, 0.99, 0}
	i := 0
	p := newRetryPolicy(time.Second, 20*time.Second, func() float64 {
		v := jitters[i%len(jitters)]
		i++
		return v
	})

	prev := time.Duration(0)
	for n := 0; n < len(jitters); n++ {
		d := p.NextBackOff()
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, 20*time.Second)
		prev = d
	}

	p.Reset()
	require.Equal(t, 1500*time.Millisecond, p.NextBackOff())
}

func TestUniform(t *testing.T) {
	require.Equal(t, time.Second, Uniform(time.Second, time.Second, func() float64 { return 0.7 }))
	require.Equal(t, 1500*time.Millisecond, Uniform(time.Second, 2*time.Second, func() float64 { return 0.5 }))
}

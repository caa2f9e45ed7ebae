package fetcher

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
)

const (
	maxSlugLength = 200
	slugPrefixLen = 180
	slugHashLen   = 16
)

// Cache stores raw response bodies on disk, fronted by an optional in-memory
// LRU. Entries never expire.
type Cache struct {
	dir     string
	memory  *lru.Cache[string, string]
	metrics *metrics.Metrics
}

// NewCache creates a cache rooted at dir. memorySize <= 0 disables the
// in-memory tier.
func NewCache(dir string, memorySize int, m *metrics.Metrics) (*Cache, error) {
	c := &Cache{dir: dir, metrics: m}
	if memorySize > 0 {
		memory, err := lru.New[string, string](memorySize)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		c.memory = memory
	}
	return c, nil
}

// Path returns the file that holds the entry for key in category.
func (c *Cache) Path(category models.Category, key string) string {
	return filepath.Join(c.dir, categoryDir(category), Slug(key)+categoryExt(category))
}

// Get returns the cached body for key, checking memory before disk.
func (c *Cache) Get(category models.Category, key string) (string, bool) {
	memKey := string(category) + "|" + key
	if c.memory != nil {
		if body, ok := c.memory.Get(memKey); ok {
			c.metrics.IncCacheHit(metrics.TierMemory)
			return body, true
		}
	}

	data, err := os.ReadFile(c.Path(category, key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return "", false
	}
	body := string(data)
	if c.memory != nil {
		c.memory.Add(memKey, body)
	}
	c.metrics.IncCacheHit(metrics.TierDisk)
	return body, true
}

// Put writes body for key. The file is replaced atomically so concurrent
// readers never observe a partial entry.
func (c *Cache) Put(category models.Category, key, body string) error {
	path := c.Path(category, key)
	if err := writeFileAtomic(path, []byte(body)); err != nil {
		return fmt.Errorf("write cache entry %s: %w", path, err)
	}
	if c.memory != nil {
		c.memory.Add(string(category)+"|"+key, body)
	}
	return nil
}

// Slug maps a cache key to a filesystem-safe name. Characters outside
// [A-Za-z0-9_.-] become underscores. Whenever a character was replaced, or
// the key is too long, a hash of the key is appended so distinct keys never
// share a file.
func Slug(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	replaced := false
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
			replaced = true
		}
	}
	slug := b.String()
	if !replaced && len(slug) <= maxSlugLength {
		return slug
	}
	if len(slug) > slugPrefixLen {
		slug = slug[:slugPrefixLen]
	}
	sum := sha1.Sum([]byte(key))
	return slug + "_" + hex.EncodeToString(sum[:])[:slugHashLen]
}

func categoryDir(category models.Category) string {
	switch category {
	case models.CategorySitemap:
		return "sitemaps"
	case models.CategoryCategory:
		return "categories"
	case models.CategoryProduct:
		return "products"
	default:
		return "generic"
	}
}

func categoryExt(category models.Category) string {
	if category == models.CategorySitemap {
		return ".xml"
	}
	return ".html"
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

package core

import (
	"platecore/pkg/domain"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long an unused analysis result stays cached.
const DefaultCacheTTL = 5 * time.Minute

// ResultCache memoises AnalysisResults per plate-assay revision. Entries of a plate-assay
// are dropped on every committed mutation touching it, and the revision in the key keeps a
// result computed before a mutation from ever being served after it.
type ResultCache struct {
	c *cache.Cache
}

// NewResultCache creates a cache whose entries expire after ttl of disuse.
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{c: cache.New(ttl, 2*ttl)}
}

func cachePrefix(key domain.PlateAssayKey) string {
	return key.PlateID + "\x00" + key.AssayID + "\x00"
}

func cacheKey(key domain.PlateAssayKey, revision uint64, section string) string {
	return cachePrefix(key) + strconv.FormatUint(revision, 10) + "\x00" + section
}

// Get returns the cached result of section at revision.
func (rc *ResultCache) Get(key domain.PlateAssayKey, revision uint64, section string) (domain.AnalysisResult, bool) {
	v, ok := rc.c.Get(cacheKey(key, revision, section))
	if !ok {
		return domain.AnalysisResult{}, false
	}
	return v.(domain.AnalysisResult), true
}

// Put stores a result under its own plate-assay, revision and section.
func (rc *ResultCache) Put(result domain.AnalysisResult) {
	rc.c.SetDefault(cacheKey(result.PlateAssay, result.Revision, result.Section), result)
}

// Invalidate drops every cached result of the given plate-assays.
func (rc *ResultCache) Invalidate(keys ...domain.PlateAssayKey) {
	if len(keys) == 0 {
		return
	}
	prefixes := make([]string, len(keys))
	for i, k := range keys {
		prefixes[i] = cachePrefix(k)
	}
	for k := range rc.c.Items() {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				rc.c.Delete(k)
				break
			}
		}
	}
}

// Len returns the number of live entries.
func (rc *ResultCache) Len() int { return rc.c.ItemCount() }

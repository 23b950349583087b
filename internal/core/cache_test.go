package core

import (
	"platecore/pkg/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultCacheKeysByRevision(t *testing.T) {
	rc := NewResultCache(0)
	p1 := domain.NewPlateAssayKey("P1", "A1")
	p10 := domain.NewPlateAssayKey("P1", "A10")
	rc.Put(domain.AnalysisResult{PlateAssay: p1, Section: "S1", Revision: 3, Count: 4})
	rc.Put(domain.AnalysisResult{PlateAssay: p10, Section: "S1", Revision: 3, Count: 9})

	got, ok := rc.Get(p1, 3, "S1")
	assert.True(t, ok)
	assert.Equal(t, 4, got.Count)
	_, ok = rc.Get(p1, 4, "S1")
	assert.False(t, ok)
	_, ok = rc.Get(p1, 3, "S2")
	assert.False(t, ok)

	// invalidating P1_A1 must not drop P1_A10
	rc.Invalidate(p1)
	assert.Equal(t, 1, rc.Len())
	_, ok = rc.Get(p10, 3, "S1")
	assert.True(t, ok)

	rc.Invalidate()
	assert.Equal(t, 1, rc.Len())
}

func TestResultCacheExpires(t *testing.T) {
	rc := NewResultCache(20 * time.Millisecond)
	key := domain.NewPlateAssayKey("P1", "A1")
	rc.Put(domain.AnalysisResult{PlateAssay: key, Section: "S1", Revision: 1})
	assert.Eventually(t, func() bool {
		_, ok := rc.Get(key, 1, "S1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

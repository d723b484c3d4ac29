package oracle

import (
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/signalsfoundry/decay-simulator/model"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 30 * time.Second
)

// cacheKey quantizes altitude to whole kilometres so neighbouring satellites
// and consecutive polls share replies.
type cacheKey struct {
	altitudeKm int64
	f107       float64
	kp         float64
}

func keyFor(altitudeKm float64, env model.Environment) cacheKey {
	return cacheKey{altitudeKm: int64(math.Round(altitudeKm)), f107: env.F107, kp: env.Kp}
}

type densityCache struct {
	lru *expirable.LRU[cacheKey, float64]
}

func newDensityCache(size int, ttl time.Duration) *densityCache {
	if ttl <= 0 {
		return nil
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	return &densityCache{lru: expirable.NewLRU[cacheKey, float64](size, nil, ttl)}
}

func (c *densityCache) get(k cacheKey) (float64, bool) {
	if c == nil {
		return 0, false
	}
	return c.lru.Get(k)
}

func (c *densityCache) add(k cacheKey, density float64) {
	if c == nil {
		return
	}
	c.lru.Add(k, density)
}

func (c *densityCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

package aippt

import (
	"sync"
)

var globalCache = &cache{}

type cache struct {
	m sync.Map
}

// loadProbeCache returns a copy of the probe cached for a path or URL.
func loadProbeCache(key string) (*imageProbe, bool) {
	if v, ok := globalCache.m.Load(key); ok {
		if p, ok := v.(*imageProbe); ok {
			c := *p
			return &c, true
		}
	}
	return nil, false
}

func storeProbeCache(key string, p *imageProbe) {
	if p == nil {
		return
	}
	c := *p
	globalCache.m.Store(key, &c)
}

// Package cache provides the generic LRU cache used for compiled native
// pipeline objects.
//
//	c := cache.New[*rhi.PipelineState, *compiled](64, func(_ *rhi.PipelineState, p *compiled) {
//	    p.destroy()
//	})
//	p, err := c.GetOrCreate(state, compile)
//
// Entries leave the cache through eviction, Delete or Clear, and every exit
// goes through the eviction callback so native objects are destroyed exactly
// once.
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache

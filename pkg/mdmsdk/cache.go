package mdmsdk

// Per-connection caches, keyed by a resource-type identifier. There is no
// eviction beyond explicit flush and no TTL; callers invalidate on writes.
// All three are emptied together on Disconnect.

// CacheList stores a cached collection list for a resource type.
func (c *Client) CacheList(resourceType string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCache[resourceType] = v
}

// CachedList returns the cached collection list for a resource type.
func (c *Client) CachedList(resourceType string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.listCache[resourceType]
	return v, ok
}

// CacheSingleton stores a cached singleton resource.
func (c *Client) CacheSingleton(resourceType string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletonCache[resourceType] = v
}

// CachedSingleton returns the cached singleton resource.
func (c *Client) CachedSingleton(resourceType string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.singletonCache[resourceType]
	return v, ok
}

// CacheExtAttrs stores cached extension-attribute definitions.
func (c *Client) CacheExtAttrs(resourceType string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extAttrCache[resourceType] = v
}

// CachedExtAttrs returns the cached extension-attribute definitions.
func (c *Client) CachedExtAttrs(resourceType string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.extAttrCache[resourceType]
	return v, ok
}

// FlushCache evicts the given resource types from all three caches, or
// empties all three entirely when called with no arguments.
func (c *Client) FlushCache(resourceTypes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(resourceTypes) == 0 {
		c.flushAllLocked()
		return
	}
	for _, rt := range resourceTypes {
		delete(c.listCache, rt)
		delete(c.singletonCache, rt)
		delete(c.extAttrCache, rt)
	}
}

func (c *Client) flushAllLocked() {
	clear(c.listCache)
	clear(c.singletonCache)
	clear(c.extAttrCache)
}

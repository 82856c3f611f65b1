package content

import (
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/km-arc/go-overlay/framework/dom"
)

// GetCachedContent returns the cached subtree for key, or nil. It does not
// affect eviction order.
func (m *Manager) GetCachedContent(key string) *html.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, _ := m.cache.Peek(key)
	return node
}

// CacheContent stores node under key, evicting the oldest entry when the
// cache is full.
//
// Storing an existing key replaces its subtree and also moves it to the
// newest position, so a re-cached key is evicted last. This is not plain
// insertion order: a map that keeps the first insertion slot would evict
// it first.
func (m *Manager) CacheContent(key string, node *html.Node) {
	if key == "" || node == nil {
		return
	}
	m.mu.Lock()
	m.cache.Add(key, node)
	owner, evicted := m.takeEvictedLocked()
	m.mu.Unlock()
	releaseComponents(owner, evicted)
}

// ClearCache empties the cache and releases the components kept for the
// cached subtrees. The current content is kept.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	n := m.cache.Len()
	m.purging = true
	m.cache.Purge()
	m.purging = false
	owner, evicted := m.takeEvictedLocked()
	m.mu.Unlock()
	releaseComponents(owner, evicted)

	m.logger.Debug("content cache cleared", zap.Int("entries", n))
}

// CachedKeys returns the cached keys, oldest first.
func (m *Manager) CachedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Keys()
}

// HasContent reports whether there is current content.
func (m *Manager) HasContent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// CurrentContent returns the most recently produced subtree, or nil. The
// node stays live: theme changes and updates edit it under the manager's
// lock, so use RenderCurrent to read it while other goroutines may publish.
func (m *Manager) CurrentContent() *html.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RenderCurrent renders the current content to HTML, or "" without current
// content. The subtree cannot change while it is rendered.
func (m *Manager) RenderCurrent() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", nil
	}
	return dom.Render(m.current)
}

// ClearContent detaches the current content from its parent and forgets it.
// Cached copies stay cached.
func (m *Manager) ClearContent() {
	m.mu.Lock()
	node := m.current
	m.current = nil
	if node != nil {
		dom.Detach(node)
	}
	m.mu.Unlock()
}

package keypool

import "sync"

// ModelCatalog holds the upstream model list fetched during startup
// reconciliation. The list is advisory; requests for models outside it
// are still forwarded.
type ModelCatalog struct {
	mu     sync.RWMutex
	models []string
}

// NewModelCatalog returns an empty catalog.
func NewModelCatalog() *ModelCatalog {
	return &ModelCatalog{}
}

// Replace installs a new model list.
func (c *ModelCatalog) Replace(models []string) {
	next := make([]string, len(models))
	copy(next, models)

	c.mu.Lock()
	c.models = next
	c.mu.Unlock()
}

// Models returns a copy of the current model list.
func (c *ModelCatalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

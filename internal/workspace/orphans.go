package workspace

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/quillhq/quill/internal/coordinator"
)

// DefaultOrphanRetention bounds how long orphaned results are kept for
// manual recovery before being discarded.
const DefaultOrphanRetention = 24 * time.Hour

// OrphanArchive holds finished requests whose marker could not be located,
// keyed by request ID, for out-of-band delivery. Entries expire after the
// configured retention bound.
type OrphanArchive struct {
	c *cache.Cache
}

// NewOrphanArchive creates an archive. retention <= 0 uses the default.
func NewOrphanArchive(retention time.Duration) *OrphanArchive {
	if retention <= 0 {
		retention = DefaultOrphanRetention
	}
	cleanup := retention / 4
	if cleanup > 10*time.Minute {
		cleanup = 10 * time.Minute
	}
	return &OrphanArchive{c: cache.New(retention, cleanup)}
}

// Add archives a finished request snapshot.
func (a *OrphanArchive) Add(req coordinator.Request) {
	a.c.SetDefault(req.ID, req)
}

// Get returns the archived request for id, if it has not expired.
func (a *OrphanArchive) Get(id string) (coordinator.Request, bool) {
	v, ok := a.c.Get(id)
	if !ok {
		return coordinator.Request{}, false
	}
	return v.(coordinator.Request), true
}

// List returns every unexpired archived request.
func (a *OrphanArchive) List() []coordinator.Request {
	items := a.c.Items()
	out := make([]coordinator.Request, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(coordinator.Request))
	}
	return out
}

// Len returns the number of unexpired archived requests.
func (a *OrphanArchive) Len() int {
	return a.c.ItemCount()
}

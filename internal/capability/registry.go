package capability

import (
	"sort"
	"sync"

	"datacenter/pkg/logging"
)

// Registry caches the capability entry of every connected worker, keyed by
// data source name. Each key is replaced atomically, so readers observe
// either the previous or the new snapshot and never a mix of both; there is
// no lock spanning all sources.
type Registry struct {
	entries sync.Map // string -> *Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Replace installs entry for its source, discarding any previous snapshot.
func (r *Registry) Replace(entry *Entry) {
	r.entries.Store(entry.Source(), entry)
	logging.Debug("Capabilities", "Registered %d resources and %d tools for %s",
		len(entry.resources), len(entry.tools), entry.Source())
}

// Remove discards the snapshot for source.
func (r *Registry) Remove(source string) {
	if _, ok := r.entries.LoadAndDelete(source); ok {
		logging.Debug("Capabilities", "Discarded capabilities of %s", source)
	}
}

// Get returns the snapshot for source.
func (r *Registry) Get(source string) (*Entry, bool) {
	v, ok := r.entries.Load(source)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Sources lists the sources with a snapshot, sorted.
func (r *Registry) Sources() []string {
	var out []string
	r.entries.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// SourcesWithTool lists the sources whose snapshot advertises tool, sorted.
func (r *Registry) SourcesWithTool(tool string) []string {
	var out []string
	r.entries.Range(func(k, v any) bool {
		if v.(*Entry).HasTool(tool) {
			out = append(out, k.(string))
		}
		return true
	})
	sort.Strings(out)
	return out
}

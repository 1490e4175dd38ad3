package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/zerbitx/lyre/definition"
)

// Registry holds the current definitions keyed by method and path.
// Writers replace whole entries, so readers see either the old or the new definition.
type Registry struct {
	mu      sync.RWMutex
	entries map[definition.Key]*definition.Definition
	sources map[string][]definition.Key
}

// New returns an empty registry
func New() *Registry {
	return &Registry{
		entries: map[definition.Key]*definition.Definition{},
		sources: map[string][]definition.Key{},
	}
}

// Replace swaps every definition owned by source for defs in one step.
// Keys already owned by another source are taken over.
func (r *Registry) Replace(source string, defs []*definition.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeSource(source, defs)

	keys := make([]definition.Key, 0, len(defs))
	for _, def := range defs {
		r.put(source, def)
		keys = append(keys, def.Key())
	}

	if len(keys) > 0 {
		r.sources[source] = keys
	}
}

// Put registers a single definition under its own source
func (r *Registry) Put(def *definition.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(def.Source, def)
	r.sources[def.Source] = appendKey(r.sources[def.Source], def.Key())
}

// RemoveSource drops every definition that came from source
func (r *Registry) RemoveSource(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeSource(source, nil)
}

// Sources lists the sources that currently own at least one definition
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for source := range r.sources {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	return sources
}

// Get returns the definition registered for key
func (r *Registry) Get(key definition.Key) (*definition.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.entries[key]
	return def, ok
}

// Match finds the definition serving a request. Exact paths win over patterns,
// patterns may use :name segments and a trailing *.
func (r *Registry) Match(method, path string) (*definition.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.entries[definition.Key{Method: method, Path: path}]; ok {
		return def, true
	}

	var best *definition.Definition
	for key, def := range r.entries {
		if key.Method != method || !matches(key.Path, path) {
			continue
		}

		// most specific pattern wins, ties broken by path for stable routing
		if best == nil || specificity(key.Path) > specificity(best.Path) ||
			(specificity(key.Path) == specificity(best.Path) && key.Path < best.Path) {
			best = def
		}
	}

	return best, best != nil
}

// List returns every definition sorted by path then method
func (r *Registry) List() []*definition.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*definition.Definition, 0, len(r.entries))
	for _, def := range r.entries {
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Path != defs[j].Path {
			return defs[i].Path < defs[j].Path
		}
		return defs[i].Method < defs[j].Method
	})

	return defs
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

func (r *Registry) put(source string, def *definition.Definition) {
	key := def.Key()

	if previous, ok := r.entries[key]; ok {
		if def.Countdown.SameConfig(previous.Countdown) {
			def.Countdown.Inherit(previous.Countdown)
		}

		if previous.Source != source {
			r.disown(previous.Source, key)
		}
	}

	r.entries[key] = def
}

// removeSource deletes the entries owned by source, keeping the keys listed in keep
// so a replacement never leaves a gap readers could observe.
func (r *Registry) removeSource(source string, keep []*definition.Definition) {
	kept := map[definition.Key]bool{}
	for _, def := range keep {
		kept[def.Key()] = true
	}

	for _, key := range r.sources[source] {
		if kept[key] {
			continue
		}

		if def, ok := r.entries[key]; ok && def.Source == source {
			delete(r.entries, key)
		}
	}

	delete(r.sources, source)
}

func (r *Registry) disown(source string, key definition.Key) {
	keys := r.sources[source][:0]
	for _, k := range r.sources[source] {
		if k != key {
			keys = append(keys, k)
		}
	}

	if len(keys) == 0 {
		delete(r.sources, source)
		return
	}

	r.sources[source] = keys
}

func appendKey(keys []definition.Key, key definition.Key) []definition.Key {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}

	return append(keys, key)
}

func matches(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")

	for i, segment := range want {
		if segment == "*" && i == len(want)-1 {
			return true
		}

		if i >= len(got) {
			return false
		}

		if strings.HasPrefix(segment, ":") && got[i] != "" {
			continue
		}

		if segment != got[i] {
			return false
		}
	}

	return len(want) == len(got)
}

// specificity counts literal segments
func specificity(pattern string) int {
	n := 0
	for _, segment := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if segment != "*" && !strings.HasPrefix(segment, ":") {
			n++
		}
	}

	return n
}

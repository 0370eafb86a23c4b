// Package links tracks hyperlinks discovered in article content whose edges
// cannot be materialized yet, and resolves them once both endpoints are
// graph nodes.
package links

// Pending is a discovered link from Source to Target.
type Pending struct {
	Source string `json:"source"`
	Target string `json:"target"`
	LinkID string `json:"link_id"`
}

// Known reports which titles are currently graph nodes.
type Known interface {
	Has(title string) bool
	Titles() []string
}

// Registry maps target -> source -> link id. Sources are kept in discovery
// order so resolution output is stable.
//
// Registry is not safe for concurrent use; the owning session serializes access.
type Registry struct {
	from    map[string]map[string]string // target -> source -> link id
	sources map[string][]string          // target -> sources in discovery order
	targets map[string][]string          // source -> targets in discovery order
	size    int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		from:    make(map[string]map[string]string),
		sources: make(map[string][]string),
		targets: make(map[string][]string),
	}
}

// Record registers that source's content links to target. The first link id
// seen for a (target, source) pair wins; later calls return false.
func (r *Registry) Record(source, target, linkID string) bool {
	bySource, ok := r.from[target]
	if !ok {
		bySource = make(map[string]string)
		r.from[target] = bySource
	}
	if _, dup := bySource[source]; dup {
		return false
	}
	bySource[source] = linkID
	r.sources[target] = append(r.sources[target], source)
	r.targets[source] = append(r.targets[source], target)
	r.size++
	return true
}

// LinkID returns the recorded link id for source -> target.
func (r *Registry) LinkID(source, target string) (string, bool) {
	id, ok := r.from[target][source]
	return id, ok
}

// ResolveAll scans every known title and returns one tuple per pending link
// whose source and target are both known.
func (r *Registry) ResolveAll(known Known) []Pending {
	var out []Pending
	for _, target := range known.Titles() {
		out = append(out, r.resolveTarget(target, known)...)
	}
	return out
}

// ResolveFor returns the pending links that became resolvable when title was
// added: links into title from known sources, and links out of title to
// known targets.
func (r *Registry) ResolveFor(title string, known Known) []Pending {
	out := r.resolveTarget(title, known)
	for _, target := range r.targets[title] {
		if target == title || !known.Has(target) {
			continue
		}
		out = append(out, Pending{Source: title, Target: target, LinkID: r.from[target][title]})
	}
	return out
}

func (r *Registry) resolveTarget(target string, known Known) []Pending {
	var out []Pending
	for _, source := range r.sources[target] {
		if !known.Has(source) {
			continue
		}
		out = append(out, Pending{Source: source, Target: target, LinkID: r.from[target][source]})
	}
	return out
}

// Prune drops every pending link with title as source or target and returns
// how many were removed.
func (r *Registry) Prune(title string) int {
	removed := 0

	// Links into title.
	for _, source := range r.sources[title] {
		r.targets[source] = without(r.targets[source], title)
		if len(r.targets[source]) == 0 {
			delete(r.targets, source)
		}
		removed++
	}
	delete(r.sources, title)
	delete(r.from, title)

	// Links out of title.
	for _, target := range r.targets[title] {
		if _, ok := r.from[target][title]; !ok {
			continue
		}
		delete(r.from[target], title)
		r.sources[target] = without(r.sources[target], title)
		if len(r.from[target]) == 0 {
			delete(r.from, target)
			delete(r.sources, target)
		}
		removed++
	}
	delete(r.targets, title)

	r.size -= removed
	return removed
}

// Len returns the number of recorded (target, source) pairs.
func (r *Registry) Len() int {
	return r.size
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

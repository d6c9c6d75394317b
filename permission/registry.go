package permission

import (
	"errors"
	"sort"
	"sync"
)

// Registry tracks the role tags known for one organization so the
// interaction layer can offer them when editing a member. Reserved tags are
// always registered.
type Registry struct {
	maxTags int

	mu     sync.RWMutex
	tags   map[string]struct{}
	frozen bool
}

// NewRegistry creates a [Registry] holding at most maxTags custom tags.
// maxTags <= 0 means unlimited.
func NewRegistry(maxTags int) *Registry {
	r := &Registry{
		maxTags: maxTags,
		tags:    map[string]struct{}{RoleMember: {}, RoleAdmin: {}},
	}
	return r
}

// Register records tag. Registering a known tag is a no-op.
func (r *Registry) Register(tag string) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tags[tag]; exists {
		return nil
	}
	if r.frozen {
		return errors.New("registry frozen")
	}
	if r.maxTags > 0 && len(r.tags)-2 >= r.maxTags {
		return errors.New("custom tag limit exceeded")
	}
	r.tags[tag] = struct{}{}
	return nil
}

// Observe registers every tag of rs, ignoring limit errors.
func (r *Registry) Observe(rs RoleSet) {
	for _, tag := range rs.tags {
		_ = r.Register(tag)
	}
}

func (r *Registry) Known(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tags[tag]
	return ok
}

// Tags returns the reserved tags first, then custom tags sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	custom := make([]string, 0, len(r.tags))
	for tag := range r.tags {
		if !IsReserved(tag) {
			custom = append(custom, tag)
		}
	}
	sort.Strings(custom)
	return append([]string{RoleMember, RoleAdmin}, custom...)
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tags)
}

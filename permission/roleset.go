package permission

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	// RoleMember is the default tag granted on join and invite redemption.
	RoleMember = "member"
	// RoleAdmin gates organization management and last-admin protection.
	RoleAdmin = "admin"

	maxTagLength = 64
)

var (
	// ErrRoleInvalid is returned for empty, oversized, or whitespace-padded tags.
	ErrRoleInvalid = errors.New("invalid role tag")
	// ErrRoleDuplicate is returned when a tag is already present in the set.
	ErrRoleDuplicate = errors.New("duplicate role tag")
	// ErrRoleSetEmpty is returned when a membership would be left without roles.
	ErrRoleSetEmpty = errors.New("role set must not be empty")
)

// RoleSet is an insertion-ordered set of role tags. The zero value is an
// empty set. RoleSet values are immutable: mutators return a new set.
type RoleSet struct {
	tags []string
}

// NewRoleSet builds a strict set: every tag must be valid and unique.
func NewRoleSet(tags ...string) (RoleSet, error) {
	out := RoleSet{tags: make([]string, 0, len(tags))}
	for _, tag := range tags {
		if err := ValidateTag(tag); err != nil {
			return RoleSet{}, err
		}
		if out.Has(tag) {
			return RoleSet{}, ErrRoleDuplicate
		}
		out.tags = append(out.tags, tag)
	}
	return out, nil
}

// MustRoleSet is NewRoleSet for literals known to be valid.
func MustRoleSet(tags ...string) RoleSet {
	rs, err := NewRoleSet(tags...)
	if err != nil {
		panic(err)
	}
	return rs
}

// ParseRoleSet is the lenient constructor used for server data: tags are
// trimmed, empties dropped and duplicates collapsed.
func ParseRoleSet(tags []string) RoleSet {
	out := RoleSet{tags: make([]string, 0, len(tags))}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || out.Has(tag) {
			continue
		}
		out.tags = append(out.tags, tag)
	}
	return out
}

// ValidateTag reports whether tag may be stored in a role set.
func ValidateTag(tag string) error {
	if tag == "" || len(tag) > maxTagLength {
		return ErrRoleInvalid
	}
	if strings.TrimSpace(tag) != tag {
		return ErrRoleInvalid
	}
	return nil
}

// IsReserved reports whether tag is one of the two well-known tags.
func IsReserved(tag string) bool {
	return tag == RoleMember || tag == RoleAdmin
}

func (r RoleSet) Has(tag string) bool {
	for _, t := range r.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the set carries the admin tag.
func (r RoleSet) IsAdmin() bool { return r.Has(RoleAdmin) }

func (r RoleSet) Len() int { return len(r.tags) }

func (r RoleSet) Empty() bool { return len(r.tags) == 0 }

// Tags returns a copy of the tags in insertion order.
func (r RoleSet) Tags() []string {
	out := make([]string, len(r.tags))
	copy(out, r.tags)
	return out
}

// Custom returns the organization-defined tags only.
func (r RoleSet) Custom() []string {
	out := make([]string, 0, len(r.tags))
	for _, t := range r.tags {
		if !IsReserved(t) {
			out = append(out, t)
		}
	}
	return out
}

// Add returns a new set with tag appended.
func (r RoleSet) Add(tag string) (RoleSet, error) {
	if err := ValidateTag(tag); err != nil {
		return r, err
	}
	if r.Has(tag) {
		return r, ErrRoleDuplicate
	}
	next := make([]string, len(r.tags), len(r.tags)+1)
	copy(next, r.tags)
	return RoleSet{tags: append(next, tag)}, nil
}

// Remove returns a new set without tag. Removing an absent tag is a no-op.
func (r RoleSet) Remove(tag string) RoleSet {
	next := make([]string, 0, len(r.tags))
	for _, t := range r.tags {
		if t != tag {
			next = append(next, t)
		}
	}
	return RoleSet{tags: next}
}

// Equal compares membership, ignoring order.
func (r RoleSet) Equal(other RoleSet) bool {
	if len(r.tags) != len(other.tags) {
		return false
	}
	for _, t := range r.tags {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

func (r RoleSet) String() string {
	return strings.Join(r.tags, ",")
}

func (r RoleSet) MarshalJSON() ([]byte, error) {
	if r.tags == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.tags)
}

func (r *RoleSet) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*r = ParseRoleSet(tags)
	return nil
}

package sessions

import (
	"encoding/json"
	"sort"
	"strings"
)

// Permissions is an immutable, unordered set of permission strings such as "user:read".
type Permissions struct {
	set map[string]struct{}
}

// NewPermissions builds a set, discarding blanks and duplicates.
func NewPermissions(perms ...string) Permissions {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return Permissions{set: set}
}

// Has reports whether p is in the set.
func (p Permissions) Has(perm string) bool {
	_, ok := p.set[perm]
	return ok
}

// Len returns the number of distinct permissions.
func (p Permissions) Len() int {
	return len(p.set)
}

// Defined reports whether the set was explicitly supplied (it may still be empty).
func (p Permissions) Defined() bool {
	return p.set != nil
}

// List returns the permissions sorted.
func (p Permissions) List() []string {
	list := make([]string, 0, len(p.set))
	for perm := range p.set {
		list = append(list, perm)
	}
	sort.Strings(list)
	return list
}

// Equal reports whether both sets hold the same permissions.
func (p Permissions) Equal(other Permissions) bool {
	if len(p.set) != len(other.set) {
		return false
	}
	for perm := range p.set {
		if !other.Has(perm) {
			return false
		}
	}
	return true
}

func (p Permissions) String() string {
	return strings.Join(p.List(), " ")
}

func (p Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.List())
}

func (p *Permissions) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*p = NewPermissions(list...)
	return nil
}

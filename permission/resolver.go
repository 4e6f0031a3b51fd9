// Package permission resolves a role's effective permission set from a
// static inheritance graph. Roles are data, not a class hierarchy: each
// role declares its own permissions plus the roles it inherits from,
// and the resolver flattens the closure once at load time.
package permission

import (
	"errors"
	"fmt"
	"sort"
)

// Wildcard grants every permission when present anywhere in a role's
// resolved closure.
const Wildcard = "*"

// RoleID identifies one of the platform's known roles.
type RoleID string

// The platform role set. Level ordering is inverted on purpose: lower
// numbers mean higher privilege, and the whole role table is defined
// against that convention.
const (
	RoleSuperAdmin RoleID = "superadmin"
	RoleAdmin      RoleID = "admin"
	RoleSupport    RoleID = "support"
	RoleClinician  RoleID = "clinician"
	RolePatient    RoleID = "patient"
)

var (
	// ErrRoleUnknown is returned when a role id is not in the graph.
	ErrRoleUnknown = errors.New("unknown role")
	// ErrInheritanceCycle is returned at load time when the inherits
	// edges do not form a DAG.
	ErrInheritanceCycle = errors.New("role inheritance cycle")
)

// Role is one node of the static inheritance graph.
type Role struct {
	ID          RoleID
	Level       int
	Permissions []string
	Inherits    []RoleID
}

// Resolver holds the flattened permission closure for every role.
// It is immutable after construction and safe for concurrent readers.
type Resolver struct {
	levels   map[RoleID]int
	resolved map[RoleID]map[string]struct{}
}

// NewResolver validates the graph and flattens every role's effective
// permission set. Unknown parents and cycles (direct or transitive
// self-inheritance) are rejected here so resolution never has to guard
// against them.
func NewResolver(roles []Role) (*Resolver, error) {
	if len(roles) == 0 {
		return nil, errors.New("no roles defined")
	}

	byID := make(map[RoleID]Role, len(roles))
	for _, role := range roles {
		if role.ID == "" {
			return nil, errors.New("role id empty")
		}
		if _, exists := byID[role.ID]; exists {
			return nil, fmt.Errorf("duplicate role %q", role.ID)
		}
		byID[role.ID] = role
	}
	for _, role := range roles {
		for _, parent := range role.Inherits {
			if _, ok := byID[parent]; !ok {
				return nil, fmt.Errorf("role %q inherits %w %q", role.ID, ErrRoleUnknown, parent)
			}
		}
	}
	if err := detectCycle(byID); err != nil {
		return nil, err
	}

	r := &Resolver{
		levels:   make(map[RoleID]int, len(roles)),
		resolved: make(map[RoleID]map[string]struct{}, len(roles)),
	}
	for _, role := range roles {
		r.levels[role.ID] = role.Level
		r.resolved[role.ID] = flatten(role.ID, byID)
	}
	return r, nil
}

// detectCycle runs a three-color DFS over the inherits edges.
func detectCycle(byID map[RoleID]Role) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[RoleID]int, len(byID))

	var visit func(id RoleID, trail []RoleID) error
	visit = func(id RoleID, trail []RoleID) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("%w: %v -> %s", ErrInheritanceCycle, trail, id)
		case black:
			return nil
		}
		color[id] = gray
		for _, parent := range byID[id].Inherits {
			if err := visit(parent, append(trail, id)); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for id := range byID {
		if err := visit(id, nil); err != nil {
			return err
		}
	}
	return nil
}

// flatten unions the role's own permissions with every ancestor's via a
// breadth-first walk. Each ancestor is visited at most once so diamond
// inheritance is not re-processed.
func flatten(id RoleID, byID map[RoleID]Role) map[string]struct{} {
	out := make(map[string]struct{})
	visited := map[RoleID]struct{}{id: {}}
	queue := []RoleID{id}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		role := byID[current]
		for _, perm := range role.Permissions {
			out[perm] = struct{}{}
		}
		for _, parent := range role.Inherits {
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			queue = append(queue, parent)
		}
	}
	return out
}

// Resolve returns the sorted effective permission list for the role.
func (r *Resolver) Resolve(id RoleID) ([]string, error) {
	set, ok := r.resolved[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoleUnknown, id)
	}
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out, nil
}

// Can reports whether the role's closure contains the exact permission
// string or the wildcard. Unknown roles can do nothing.
func (r *Resolver) Can(id RoleID, perm string) bool {
	set, ok := r.resolved[id]
	if !ok {
		return false
	}
	if _, ok := set[perm]; ok {
		return true
	}
	_, ok = set[Wildcard]
	return ok
}

// HasLevel reports whether the role is at least as privileged as min.
// Lower level means higher privilege, so the check is level <= min.
// This inverted ordering matches the role table and must not be
// "fixed" without redefining every role.
func (r *Resolver) HasLevel(id RoleID, min int) bool {
	level, ok := r.levels[id]
	if !ok {
		return false
	}
	return level <= min
}

// Level returns the numeric level for the role.
func (r *Resolver) Level(id RoleID) (int, error) {
	level, ok := r.levels[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrRoleUnknown, id)
	}
	return level, nil
}

// Known reports whether the role exists in the graph.
func (r *Resolver) Known(id RoleID) bool {
	_, ok := r.resolved[id]
	return ok
}

// DefaultRoles returns the platform's built-in role table. Patients are
// the base role; clinicians and support staff extend it, admins extend
// both, and superadmin holds the wildcard.
func DefaultRoles() []Role {
	return []Role{
		{
			ID:          RoleSuperAdmin,
			Level:       0,
			Permissions: []string{Wildcard},
			Inherits:    []RoleID{RoleAdmin},
		},
		{
			ID:    RoleAdmin,
			Level: 1,
			Permissions: []string{
				"users.manage",
				"sessions.revoke",
				"dashboard.view",
			},
			Inherits: []RoleID{RoleSupport, RoleClinician},
		},
		{
			ID:    RoleSupport,
			Level: 2,
			Permissions: []string{
				"users.read",
				"tickets.manage",
			},
			Inherits: []RoleID{RolePatient},
		},
		{
			ID:    RoleClinician,
			Level: 3,
			Permissions: []string{
				"patients.read",
				"records.read",
				"records.write",
			},
			Inherits: []RoleID{RolePatient},
		},
		{
			ID:    RolePatient,
			Level: 4,
			Permissions: []string{
				"profile.read",
				"profile.write",
			},
		},
	}
}

// Package guard decides whether a visitor may open a storefront view.
// Decisions are advisory: the remote API enforces authorization on its own.
package guard

import (
	"fmt"

	"autodealer/internal/domain/auth"
)

// Requirement is the access level a view declares
type Requirement string

const (
	Public        Requirement = "public"
	Authenticated Requirement = "authenticated"
	AdminOnly     Requirement = "admin-only"
)

// ParseRequirement validates a requirement name
func ParseRequirement(s string) (Requirement, error) {
	switch r := Requirement(s); r {
	case Public, Authenticated, AdminOnly:
		return r, nil
	}
	return "", fmt.Errorf("unknown view requirement %q", s)
}

// Outcome is the kind of a guard decision
type Outcome string

const (
	Allow    Outcome = "allow"
	Redirect Outcome = "redirect"
	// Pending means the session store has not finished initializing
	Pending Outcome = "pending"
)

// Decision is the result of guarding one view
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target,omitempty"`
}

// Policy holds the redirect targets
type Policy struct {
	LoginPath string
	HomePath  string
}

// DefaultPolicy redirects to /login and /
func DefaultPolicy() Policy {
	return Policy{LoginPath: "/login", HomePath: "/"}
}

// Decide applies the policy to a visitor. Unknown state never redirects, so
// callers can wait for initialization instead of flashing the login view.
func (p Policy) Decide(state auth.State, isAdmin bool, req Requirement) Decision {
	if req == Public {
		return Decision{Outcome: Allow}
	}
	if state == auth.StateUnknown {
		return Decision{Outcome: Pending}
	}

	authenticated := state == auth.StateAuthenticated
	switch req {
	case Authenticated:
		if !authenticated {
			return Decision{Outcome: Redirect, Target: p.LoginPath}
		}
	case AdminOnly:
		if !authenticated || !isAdmin {
			return Decision{Outcome: Redirect, Target: p.HomePath}
		}
	default:
		// Undeclared requirements are treated as the strictest level
		if !authenticated || !isAdmin {
			return Decision{Outcome: Redirect, Target: p.HomePath}
		}
	}
	return Decision{Outcome: Allow}
}

// Viewer is the read side of a session store
type Viewer interface {
	State() auth.State
	IsAdmin() bool
}

// Guard applies a policy to a route table
type Guard struct {
	routes *Routes
	policy Policy
}

// New creates a guard. Nil routes fall back to the built-in table.
func New(routes *Routes, policy Policy) *Guard {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Guard{routes: routes, policy: policy}
}

// Check decides whether v may open the view at path
func (g *Guard) Check(v Viewer, path string) Decision {
	return g.policy.Decide(v.State(), v.IsAdmin(), g.routes.Requirement(path))
}

// Requirement returns the requirement declared for path
func (g *Guard) Requirement(path string) Requirement {
	return g.routes.Requirement(path)
}

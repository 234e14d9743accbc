// Package access maps roles to the capabilities checked at the HTTP
// boundary.  Handlers never compare role names themselves.
package access

import (
	"github.com/casbin/casbin"

	"github.com/iliyamo/election-voting-portal/internal/model"
)

// Capability is an action a role may perform.
type Capability string

const (
	ManageElections Capability = "manage_elections"
	ManageUsers     Capability = "manage_users"
	Vote            Capability = "vote"
	ViewResults     Capability = "view_results" // final results of completed elections
	ViewReports     Capability = "view_reports" // live tallies, turnout, trends
	ExportResults   Capability = "export_results"
	ViewAudit       Capability = "view_audit"
)

// AllCapabilities lists every capability in a stable order.
var AllCapabilities = []Capability{
	ManageElections, ManageUsers, Vote, ViewResults, ViewReports, ExportResults, ViewAudit,
}

// Role based model: a role holds a capability directly or through a role it
// inherits (g).
const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// Policy answers capability questions for roles.
type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy builds the built-in policy:
//
//	observer          view_results, view_reports, view_audit
//	election_officer  observer + export_results
//	admin             election_officer + manage_elections, manage_users
//	voter             vote, view_results
func NewPolicy() *Policy {
	e := casbin.NewEnforcer(casbin.NewModel(rbacModel), false)

	grant := func(role model.Role, caps ...Capability) {
		for _, c := range caps {
			e.AddPolicy(string(role), string(c))
		}
	}
	grant(model.RoleObserver, ViewResults, ViewReports, ViewAudit)
	grant(model.RoleElectionOfficer, ExportResults)
	grant(model.RoleAdmin, ManageElections, ManageUsers)
	grant(model.RoleVoter, Vote, ViewResults)

	e.AddGroupingPolicy(string(model.RoleElectionOfficer), string(model.RoleObserver))
	e.AddGroupingPolicy(string(model.RoleAdmin), string(model.RoleElectionOfficer))

	return &Policy{enforcer: e}
}

// Can reports whether role holds capability c.
func (p *Policy) Can(role model.Role, c Capability) bool {
	if !role.Valid() {
		return false
	}
	return p.enforcer.Enforce(string(role), string(c))
}

// Capabilities lists every capability role holds.
func (p *Policy) Capabilities(role model.Role) []Capability {
	var out []Capability
	for _, c := range AllCapabilities {
		if p.Can(role, c) {
			out = append(out, c)
		}
	}
	return out
}

package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/gartstein/insurecrm/internal/policy/models"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// rolePolicy grants routes per role. Sales agents cannot correct sales and
// HR managers only see themselves.
const rolePolicy = `
p, AGENCY_MANAGER, /v1/*, .*
p, SALES_AGENT, /v1/policies*, ^(GET|POST|PUT)$
p, SALES_AGENT, /v1/sales*, ^(GET|POST)$
p, SALES_AGENT, /v1/products*, ^GET$
p, SALES_AGENT, /v1/partners*, ^GET$
p, SALES_AGENT, /v1/me, ^GET$
p, HR_MANAGER, /v1/me, ^GET$
`

// Authorizer decides whether a role may call a route.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(rolePolicy))
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization policy: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

func (a *Authorizer) Authorize(role models.UserRole, path, method string) (bool, error) {
	return a.enforcer.Enforce(string(role), path, method)
}

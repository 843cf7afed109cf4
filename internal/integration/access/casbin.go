// Package access decides whether an identity holds a capability.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/entity"
)

const modelConf = `
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

// rolePrefix namespaces role subjects. Callers never hold a subject in it,
// since casbin links every name to itself.
const rolePrefix = "role:"

// Checker enforces a static role table. Users map to one role; inactive
// and unknown users hold no capability.
type Checker struct {
	enforcer *casbin.SyncedEnforcer
}

func NewChecker(policy *config.AccessPolicy) (*Checker, error) {
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, fmt.Errorf("parse access model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	c := &Checker{enforcer: e}
	if err := c.Load(policy); err != nil {
		return nil, err
	}
	return c, nil
}

// Load replaces the policy.
func (c *Checker) Load(policy *config.AccessPolicy) error {
	if policy == nil {
		policy = config.DefaultAccessPolicy()
	}

	var rules, groups [][]string
	for role, caps := range policy.Roles {
		for _, capability := range caps {
			rules = append(rules, []string{rolePrefix + role, capability})
		}
	}
	for _, u := range policy.Users {
		if !u.Active || strings.HasPrefix(u.ID, rolePrefix) {
			continue
		}
		groups = append(groups, []string{u.ID, rolePrefix + u.Role})
	}
	if policy.AnonymousRole != "" {
		groups = append(groups, []string{entity.AnonymousSubject, rolePrefix + policy.AnonymousRole})
	}

	c.enforcer.ClearPolicy()
	if len(rules) > 0 {
		if _, err := c.enforcer.AddPolicies(rules); err != nil {
			return fmt.Errorf("add access rules: %w", err)
		}
	}
	if len(groups) > 0 {
		if _, err := c.enforcer.AddGroupingPolicies(groups); err != nil {
			return fmt.Errorf("add role assignments: %w", err)
		}
	}
	return nil
}

func (c *Checker) Check(ctx context.Context, identity entity.Identity, capability string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if strings.HasPrefix(identity.Subject(), rolePrefix) {
		ctxzap.Warn(ctx, "access denied for reserved subject",
			zap.String("subject", identity.Subject()),
			zap.String("capability", capability),
		)
		return false, nil
	}
	allowed, err := c.enforcer.Enforce(identity.Subject(), capability)
	if err != nil {
		return false, fmt.Errorf("enforce %s for %s: %w", capability, identity, err)
	}
	ctxzap.Debug(ctx, "access checked",
		zap.String("subject", identity.Subject()),
		zap.String("capability", capability),
		zap.Bool("allowed", allowed),
	)
	return allowed, nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AccessPolicy is the static RBAC table consumed by access control.
type AccessPolicy struct {
	Roles         map[string][]string `yaml:"roles"`
	Users         []PolicyUser        `yaml:"users"`
	AnonymousRole string              `yaml:"anonymous_role"`
}

type PolicyUser struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	Department string `yaml:"department"`
	Active     bool   `yaml:"active"`
}

// DefaultAccessPolicy grants querying to every built-in role and nothing to
// anonymous callers.
func DefaultAccessPolicy() *AccessPolicy {
	return &AccessPolicy{
		Roles: map[string][]string{
			"employee": {"can_query_rag"},
			"trainer":  {"can_query_rag", "can_view_dashboard"},
			"admin":    {"can_query_rag", "can_view_dashboard", "can_modify_knowledge_base"},
		},
	}
}

// LoadAccessPolicy reads the policy file, falling back to the default policy
// when the file does not exist.
func LoadAccessPolicy(path string) (*AccessPolicy, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: access policy file not found at %s, using default policy\n", path)
		return DefaultAccessPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read access policy file: %w", err)
	}

	return ParseAccessPolicy(data)
}

func ParseAccessPolicy(data []byte) (*AccessPolicy, error) {
	policy := &AccessPolicy{}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parse access policy YAML: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

func (p *AccessPolicy) Validate() error {
	if len(p.Roles) == 0 {
		return fmt.Errorf("access policy defines no roles")
	}
	if p.AnonymousRole != "" {
		if _, ok := p.Roles[p.AnonymousRole]; !ok {
			return fmt.Errorf("anonymous_role %q is not a defined role", p.AnonymousRole)
		}
	}

	seen := make(map[string]struct{}, len(p.Users))
	for _, u := range p.Users {
		if u.ID == "" {
			return fmt.Errorf("access policy user without id")
		}
		if u.ID == "anonymous" {
			return fmt.Errorf("user id %q is reserved", u.ID)
		}
		if _, ok := seen[u.ID]; ok {
			return fmt.Errorf("duplicate user id %q", u.ID)
		}
		seen[u.ID] = struct{}{}
		if _, ok := p.Roles[u.Role]; !ok {
			return fmt.Errorf("user %q has unknown role %q", u.ID, u.Role)
		}
	}
	return nil
}

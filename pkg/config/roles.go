package config

import "strings"

// BootstrapConfig describes the roles and admin user created at startup
type BootstrapConfig struct {
	Roles         string `env:"BOOTSTRAP_ROLES" env-default:"admin,subscriber"`
	AdminUsername string `env:"BOOTSTRAP_ADMIN_USERNAME" env-default:""`
	AdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL" env-default:""`
	AdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD" env-default:""`
	AdminRole     string `env:"BOOTSTRAP_ADMIN_ROLE" env-default:"admin"`
}

// RoleNames returns the roles to seed
func (c BootstrapConfig) RoleNames() []string {
	return ParseRoleNames(c.Roles)
}

// ParseRoleNames parses a comma-separated list of role names.
// Returns a slice of trimmed, non-empty, unique role names.
func ParseRoleNames(envValue string) []string {
	parts := strings.Split(envValue, ",")
	roles := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" && !seen[trimmed] {
			seen[trimmed] = true
			roles = append(roles, trimmed)
		}
	}

	return roles
}

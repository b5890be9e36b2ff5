package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"

	idmerrors "github.com/tendant/identity-core/pkg/errors"
	"github.com/tendant/identity-core/pkg/iam"
	"github.com/tendant/identity-core/pkg/role"
)

// Config contains configuration for bootstrapping roles, the ghost user and the admin user
type Config struct {
	// Role names to seed (from BOOTSTRAP_ROLES)
	RoleNames []string

	// Admin user (from BOOTSTRAP_ADMIN_*); skipped when AdminUsername is empty
	AdminUsername string
	AdminEmail    string
	AdminPassword string
	AdminRole     string

	// Service dependencies
	Roles *role.RoleService
	Users *iam.UserService
}

// RoleInfo describes a seeded role
type RoleInfo struct {
	Name    string
	Created bool // true if created, false if already existed
}

// Result contains the result of a bootstrap run
type Result struct {
	Roles        []RoleInfo
	GhostCreated bool

	Username        string
	Email           string
	AdminRole       string
	Password        string // Only populated if auto-generated
	UserCreated     bool
	PasswordUpdated bool
	PasswordFromEnv bool
}

// Run seeds roles and the ghost user, then creates the admin user if it does not exist.
// An existing admin gets its password re-hashed when a different one is configured.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid bootstrap configuration: %w", err)
	}

	roleNames := cfg.RoleNames
	if cfg.AdminUsername != "" && !slices.Contains(roleNames, cfg.AdminRole) {
		roleNames = append(slices.Clone(roleNames), cfg.AdminRole)
	}

	roleInfos, err := ensureRoles(ctx, cfg.Roles, roleNames)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure roles: %w", err)
	}
	result := &Result{Roles: roleInfos}

	_, result.GhostCreated, err = cfg.Users.EnsureGhostUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure ghost user: %w", err)
	}

	if cfg.AdminUsername == "" {
		slog.Info("No admin username configured - skipping admin bootstrap")
		return result, nil
	}
	if err := ensureAdmin(ctx, cfg, result); err != nil {
		return nil, fmt.Errorf("failed to ensure admin user: %w", err)
	}

	slog.Info("Bootstrap completed successfully",
		"roles_created", countCreated(roleInfos),
		"ghost_created", result.GhostCreated,
		"user_created", result.UserCreated,
		"username", result.Username)

	return result, nil
}

// validateConfig validates the bootstrap configuration
func validateConfig(cfg Config) error {
	if cfg.Roles == nil {
		return fmt.Errorf("role service is required")
	}
	if cfg.Users == nil {
		return fmt.Errorf("user service is required")
	}
	if cfg.AdminUsername != "" && cfg.AdminRole == "" {
		return fmt.Errorf("admin role is required when an admin username is set")
	}
	return nil
}

// ensureRoles ensures all roles exist, creating them if necessary
func ensureRoles(ctx context.Context, roles *role.RoleService, roleNames []string) ([]RoleInfo, error) {
	roleInfos := make([]RoleInfo, 0, len(roleNames))
	for _, name := range roleNames {
		_, created, err := roles.EnsureRole(ctx, name, role.RoleSpec{DisplayName: name})
		if err != nil {
			return nil, fmt.Errorf("failed to ensure role %s: %w", name, err)
		}
		if created {
			slog.Info("Role created", "role", name)
		} else {
			slog.Info("Role already exists", "role", name)
		}
		roleInfos = append(roleInfos, RoleInfo{Name: name, Created: created})
	}
	return roleInfos, nil
}

// ensureAdmin creates the admin user, or refreshes its password when one is configured
func ensureAdmin(ctx context.Context, cfg Config, result *Result) error {
	result.Username = cfg.AdminUsername
	result.Email = cfg.AdminEmail
	result.AdminRole = cfg.AdminRole
	result.PasswordFromEnv = cfg.AdminPassword != ""

	_, err := cfg.Users.GetUser(ctx, cfg.AdminUsername)
	switch {
	case err == nil:
		if !result.PasswordFromEnv {
			slog.Info("Admin user already exists", "username", cfg.AdminUsername)
			return nil
		}
		_, result.PasswordUpdated, err = cfg.Users.UpdateWithRawPassword(ctx, cfg.AdminUsername, cfg.AdminPassword)
		return err
	case !idmerrors.IsCode(err, idmerrors.ErrCodeUserNotFound):
		return err
	}

	password := cfg.AdminPassword
	if password == "" {
		password, err = generatePassword()
		if err != nil {
			return err
		}
		result.Password = password
	}
	hash, err := cfg.Users.EncryptPassword(password)
	if err != nil {
		return err
	}

	user := iam.NewUser(cfg.AdminUsername, iam.UserSpec{
		DisplayName: cfg.AdminUsername,
		Email:       cfg.AdminEmail,
		Password:    hash,
	})
	if _, err := cfg.Users.CreateUser(ctx, user, []string{cfg.AdminRole}); err != nil {
		return err
	}
	result.UserCreated = true

	slog.Info("Admin user created",
		"username", cfg.AdminUsername,
		"email", cfg.AdminEmail,
		"role", cfg.AdminRole)
	return nil
}

// generatePassword returns a random URL-safe password
func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// countCreated counts how many roles were created (vs already existed)
func countCreated(roles []RoleInfo) int {
	count := 0
	for _, role := range roles {
		if role.Created {
			count++
		}
	}
	return count
}

package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// PrintResult displays the bootstrap results in a clean, formatted way
func PrintResult(w io.Writer, result *Result) {
	if result == nil || !result.UserCreated {
		return
	}

	border := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\nADMIN BOOTSTRAP COMPLETED\n%s\n", border, border)

	fmt.Fprintln(w, "\nRoles:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for i, role := range result.Roles {
		status := "already existed"
		if role.Created {
			status = "created"
		}
		primary := ""
		if role.Name == result.AdminRole {
			primary = " (assigned to admin user)"
		}
		fmt.Fprintf(w, "  %d. %s%s [%s]\n", i+1, role.Name, primary, status)
	}

	fmt.Fprintln(w, "\nAdmin User:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "  Username:  %s\n", result.Username)
	fmt.Fprintf(w, "  Email:     %s\n", result.Email)
	fmt.Fprintf(w, "  Role:      %s\n", result.AdminRole)

	// Only display password if it was auto-generated (not from environment)
	if !result.PasswordFromEnv {
		fmt.Fprintf(w, "  Password:  %s\n", result.Password)
		fmt.Fprintln(w, "\n  THIS PASSWORD WILL NOT BE DISPLAYED AGAIN - SAVE IT NOW!")
	} else {
		fmt.Fprintln(w, "  Password:  (configured via BOOTSTRAP_ADMIN_PASSWORD)")
		fmt.Fprintln(w, "\n  Remove BOOTSTRAP_ADMIN_PASSWORD from the environment after first login.")
	}
	fmt.Fprintf(w, "%s\n\n", border)
}

// LogSummary logs a concise summary using slog (for structured logging)
func LogSummary(logger *slog.Logger, result *Result) {
	if result == nil {
		return
	}

	// Log without sensitive information (password)
	logger.Info("Bootstrap summary",
		"roles_total", len(result.Roles),
		"roles_created", countCreated(result.Roles),
		"ghost_created", result.GhostCreated,
		"admin_username", result.Username,
		"admin_role", result.AdminRole,
		"user_created", result.UserCreated,
		"password_updated", result.PasswordUpdated,
		"password_from_env", result.PasswordFromEnv,
	)
}

package server

import (
	"context"
	"log/slog"
	"strings"

	"personnel/internal/domain/directory"
	"personnel/internal/platform/config"
)

// Seed creates the protected administrator on an empty installation. Without
// SEED_ADMIN_PASSWORD nothing is created.
func Seed(ctx context.Context, dir *directory.Service, cfg config.Config) error {
	if strings.TrimSpace(cfg.SeedAdminPassword) == "" {
		slog.Info("seed skipped, SEED_ADMIN_PASSWORD not set")
		return nil
	}
	user, created, err := dir.EnsureProtectedAdmin(ctx, directory.NewUser{
		Username:  directory.ProtectedUsername,
		Password:  cfg.SeedAdminPassword,
		Email:     cfg.SeedAdminEmail,
		FirstName: "System",
		LastName:  "Administrator",
	})
	if err != nil {
		return err
	}
	if created {
		slog.Info("protected administrator created", "username", user.Username, "employeeId", user.EmployeeID)
	}
	return nil
}

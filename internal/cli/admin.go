package cli

import (
	"context"
	"fmt"

	"edugame-service/internal/app"
	"edugame-service/internal/config"
	"edugame-service/internal/infra/postgres"
	"edugame-service/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewAddAdminCmd seeds an administrator account.
func NewAddAdminCmd(configPath *string) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "add-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return addAdmin(cmd.Context(), *configPath, name, email, password)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "admin display name")
	cmd.Flags().StringVar(&email, "email", "", "admin login email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func addAdmin(ctx context.Context, configPath, name, email, password string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrateDB(ctx, db, log); err != nil {
		return err
	}

	auth := app.NewAuthService(postgres.NewStudentStore(db), postgres.NewAdminStore(db), nil, log, app.AuthConfig{})
	if err := auth.CreateAdmin(ctx, name, email, password); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("admin created", zap.String("name", name), zap.String("email", email))
	return nil
}

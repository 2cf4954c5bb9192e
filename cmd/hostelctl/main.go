package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/repository"
	"github.com/noah-isme/hostel-api/internal/service"
	"github.com/noah-isme/hostel-api/pkg/config"
	"github.com/noah-isme/hostel-api/pkg/database"
	"github.com/noah-isme/hostel-api/pkg/logger"
)

// env holds the shared collaborators built once per invocation.
type env struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "hostelctl",
		Short:        "Administrative tasks for the hostel API",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCommand(), newCreateAdminCommand(), newDeleteUserCommand())
	return root
}

func connect() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{db: db, logger: logr}, nil
}

func (e *env) close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			applied, err := database.Migrate(cmd.Context(), e.db, e.logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				cmd.Println("schema is up to date")
				return nil
			}
			for _, name := range applied {
				cmd.Printf("applied %s\n", name)
			}
			return nil
		},
	}
}

func newCreateAdminCommand() *cobra.Command {
	var req service.CreateAdminRequest
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified, approved administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("HOSTELCTL_ADMIN_PASSWORD")
			}
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			users := service.NewUserService(repository.NewUserRepository(e.db), nil, nil, e.logger)
			user, err := users.CreateAdmin(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Name, "name", "", "display name")
	flags.StringVar(&req.CollegeID, "college-id", "", "college identifier")
	flags.StringVar(&req.Email, "email", "", "login email")
	flags.StringVar(&req.Password, "password", "", "password (defaults to $HOSTELCTL_ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("college-id")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newDeleteUserCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete-user <id>",
		Short: "Permanently delete a user and the records they own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			users := service.NewUserService(repository.NewUserRepository(e.db), nil, nil, e.logger)
			if err := users.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted user %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the deletion")
	return cmd
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reposcope/internal/auth"
)

var usersPassword string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account",
	Long: `Create an account in the configured store.

The password is taken from --password, then REPOSCOPE_USER_PASSWORD, then
the first line of standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersAdd,
}

var usersSeedCmd = &cobra.Command{
	Use:   "seed <users.toml>",
	Short: "Create the accounts listed in a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersSeed,
}

func init() {
	usersAddCmd.Flags().StringVar(&usersPassword, "password", "", "Password for the new account")
	usersCmd.AddCommand(usersAddCmd, usersSeedCmd)
	rootCmd.AddCommand(usersCmd)
}

// newUserManager wires a Manager against the configured store. The
// returned func releases the store and log file.
func newUserManager(ctx context.Context) (*auth.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	manager := auth.NewManager(a.store, auth.ManagerConfig{
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger)
	return manager, func() {
		a.Close()
		closer.Close()
	}, nil
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	password := usersPassword
	if password == "" {
		password = os.Getenv("REPOSCOPE_USER_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manager, done, err := newUserManager(ctx)
	if err != nil {
		return err
	}
	defer done()

	user, err := manager.AddUser(ctx, args[0], password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", user.Username, user.ID)
	return nil
}

func runUsersSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manager, done, err := newUserManager(ctx)
	if err != nil {
		return err
	}
	defer done()

	n, err := manager.SeedUsers(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %d user(s)\n", n)
	return nil
}

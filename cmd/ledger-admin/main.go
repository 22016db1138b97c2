package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"ledger/internal/auth"
	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/worker"
)

const usage = `usage: ledger-admin <command> [flags]

commands:
  create-user     -username NAME -role admin|viewer [-password PASS]
  list-users
  purge-sessions
`

// passwordEnv supplies the password when -password is omitted, keeping it
// out of shell history.
const passwordEnv = "LEDGER_ADMIN_PASSWORD"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger("ledger-admin")
	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == "memory" {
		logger.Warn("DATA_BACKEND is memory, changes are lost when this command exits")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := cli.Bootstrap(ctx, cfg, logger, cli.Options{})
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	var runErr error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "create-user":
		runErr = createUser(ctx, app, args)
	case "list-users":
		runErr = listUsers(ctx, app)
	case "purge-sessions":
		var n int
		n, runErr = worker.NewSessionJanitor(app.Store, logger).Run(ctx)
		if runErr == nil {
			fmt.Printf("purged %d expired session(s)\n", n)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		app.Close()
		os.Exit(2)
	}

	if runErr != nil {
		logger.Error("Command failed", log.FieldError, runErr, "command", os.Args[1])
		app.Close()
		os.Exit(1)
	}
}

func createUser(ctx context.Context, app *cli.App, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "account name")
	password := fs.String("password", "", "account password (default $"+passwordEnv+")")
	roleName := fs.String("role", "viewer", "admin or viewer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv(passwordEnv)
	}

	role, err := core.ParseRole(*roleName)
	if err != nil {
		return err
	}
	u, err := app.Gate.Register(ctx, *username, *password, role)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return fmt.Errorf("username and password are required: %w", err)
	case err != nil:
		return err
	}

	app.Logger.Info("User created",
		log.FieldOperation, log.OpRegister,
		log.FieldUsername, u.Username,
		log.FieldRole, u.Role.String())
	fmt.Printf("created %s (%s)\n", u.Username, u.Role)
	return nil
}

func listUsers(ctx context.Context, app *cli.App) error {
	users, err := app.Store.ListUsers(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\n", u.Username, u.Role)
	}
	return tw.Flush()
}

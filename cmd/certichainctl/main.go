// Command certichainctl runs administrative tasks against the CertiChain
// database: applying the schema and provisioning the University account,
// which cannot be created through public registration.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/certichain/internal/database"
	"github.com/iliyamo/certichain/internal/model"
	"github.com/iliyamo/certichain/internal/repository"
)

func main() {
	_ = godotenv.Load()
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "certichainctl",
		Usage: "CertiChain administration",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-user", EnvVars: []string{"DB_USER"}, Required: true},
			&cli.StringFlag{Name: "db-pass", EnvVars: []string{"DB_PASS"}},
			&cli.StringFlag{Name: "db-host", EnvVars: []string{"DB_HOST"}, Value: "127.0.0.1"},
			&cli.StringFlag{Name: "db-port", EnvVars: []string{"DB_PORT"}, Value: "3306"},
			&cli.StringFlag{Name: "db-name", EnvVars: []string{"DB_NAME"}, Required: true},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply the database schema",
				Action: migrateAction,
			},
			{
				Name:  "provision-university",
				Usage: "create the University account, or reset its password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "printed on every certificate"},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"UNIVERSITY_PASSWORD"}, Required: true},
					&cli.IntFlag{Name: "bcrypt-cost", EnvVars: []string{"BCRYPT_COST"}, Value: bcrypt.DefaultCost},
				},
				Action: provisionAction,
			},
		},
	}
}

func openDB(c *cli.Context) (*sql.DB, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	db, err := database.Open(ctx, c.String("db-user"), c.String("db-pass"), c.String("db-host"), c.String("db-port"), c.String("db-name"))
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return db, ctx, cancel, nil
}

func migrateAction(c *cli.Context) error {
	db, ctx, cancel, err := openDB(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "applied %d statements\n", len(database.Statements()))
	return nil
}

func provisionAction(c *cli.Context) error {
	name := strings.TrimSpace(c.String("name"))
	email := strings.ToLower(strings.TrimSpace(c.String("email")))
	password := c.String("password")
	if len(password) < 8 || len(password) > 72 {
		return cli.Exit("password must be 8 to 72 bytes", 2)
	}

	db, ctx, cancel, err := openDB(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer db.Close()

	return provision(ctx, repository.NewAccountRepo(db), c.App.Writer, name, email, password, c.Int("bcrypt-cost"))
}

type accountStore interface {
	Create(ctx context.Context, name, email, password string, role model.Role, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	UpdatePassword(ctx context.Context, id uint64, password string, cost int) error
}

// provision creates the University account or resets its password.  An
// existing Student or Company account with the same email is left alone.
func provision(ctx context.Context, accounts accountStore, w io.Writer, name, email, password string, cost int) error {
	existing, err := accounts.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		id, err := accounts.Create(ctx, name, email, password, model.RoleUniversity, cost)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "created University account %d (%s)\n", id, email)
		return nil
	case err != nil:
		return err
	}

	if existing.Role != model.RoleUniversity {
		return cli.Exit(fmt.Sprintf("%s is registered as %s", email, existing.Role), 1)
	}
	if err := accounts.UpdatePassword(ctx, existing.ID, password, cost); err != nil {
		return err
	}
	fmt.Fprintf(w, "reset password of University account %d (%s)\n", existing.ID, email)
	return nil
}

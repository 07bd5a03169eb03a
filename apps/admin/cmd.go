package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/roster"
	"github.com/trezcool/absensi/storage/database"
)

var (
	migrateFunc  = database.Migrate          // mockable
	createDBFunc = database.CreateIfNotExist // mockable

	errHelp = errors.New("help provided")
)

type (
	studentGetter interface {
		GetStudent(ctx context.Context, id int) (roster.StudentView, error)
	}

	dayFinalizer interface {
		Today() core.Date
		FinalizeDay(ctx context.Context, date core.Date) (int, error)
	}

	commandLine struct {
		conf     *core.Config
		out      io.Writer
		db       *sqlx.DB
		students studentGetter
		ledger   dayFinalizer
		now      func() time.Time
	}
)

// needsDB reports whether the command in args works on the app database.
func needsDB(args []string) bool {
	if len(args) < 2 {
		return false
	}
	switch args[1] {
	case "migrate", "token", "finalize":
		return true
	}
	return false
}

func (cli *commandLine) printf(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, a...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  createdb - create the app database user and database\n")
	cli.printf("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)\n")
	cli.printf("  token -student ID | -admin NAME [-ttl DURATION] - issue a session token\n")
	cli.printf("  finalize [-date YYYY-MM-DD] - record absences of a past day (default: yesterday)\n")
	cli.printf("  gatesecret [-account NAME] - generate a TOTP secret for gate codes\n")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenStudent := tokenCmd.Int("student", 0, "The ID of the student the token is issued to.")
	tokenAdmin := tokenCmd.String("admin", "", "The name of the administrator the token is issued to.")
	tokenTTL := tokenCmd.Duration("ttl", 0, "The token lifetime (default: server.jwtExpirationDelta).")

	finalizeCmd := flag.NewFlagSet("finalize", flag.ContinueOnError)
	finalizeCmd.SetOutput(cli.out)
	finalizeDate := finalizeCmd.String("date", "", "The day to finalize, YYYY-MM-DD (default: yesterday).")

	gateCmd := flag.NewFlagSet("gatesecret", flag.ContinueOnError)
	gateCmd.SetOutput(cli.out)
	gateAccount := gateCmd.String("account", "gate", "The account name shown by authenticator apps.")

	switch args[1] {
	case "createdb":
		ctx, cancel := context.WithTimeout(context.Background(), cli.conf.Attendance.OpTimeout)
		defer cancel()
		if err := createDBFunc(ctx, cli.conf); err != nil {
			return err
		}
		cli.printf("database %q is ready\n", cli.conf.Database.Name)
		return nil

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if (*tokenStudent == 0) == (*tokenAdmin == "") {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenStudent, *tokenAdmin, *tokenTTL)

	case "finalize":
		if err := finalizeCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.finalize(*finalizeDate)

	case "gatesecret":
		if err := gateCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.gateSecret(*gateAccount)

	default:
		cli.printUsage()
		return errHelp
	}
}

package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/services/feed"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf     *core.Config
	db       *sql.DB
	repo     feed.Repository
	validate *validator.Validate
	out      io.Writer
}

// needsDB reports whether the command in args talks to the database.
func needsDB(args []string) bool {
	if len(args) < 2 {
		return false
	}
	switch args[1] {
	case "migrate", "report", "purge":
		return true
	}
	return false
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run the database migrations (up, down, redo, status, version, ...)")
	fmt.Fprintln(cli.out, "  token -subject ID [-username NAME] [-admin] [-roles ROLE,...] - issue an API token")
	fmt.Fprintln(cli.out, "  report -entity ID [-kind bus|student] [-route ID] [-lat LAT -lng LNG] - record a location report")
	fmt.Fprintln(cli.out, "  purge -entity ID - delete every location report of an entity")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenSubject := tokenCmd.String("subject", "", "The client ID the token is issued to.")
	tokenUsername := tokenCmd.String("username", "", "The client name shown in logs.")
	tokenAdmin := tokenCmd.Bool("admin", false, "Allow admin endpoints.")
	tokenRoles := tokenCmd.String("roles", "", "Comma separated roles.")

	reportCmd := flag.NewFlagSet("report", flag.ContinueOnError)
	reportCmd.SetOutput(cli.out)
	reportEntity := reportCmd.String("entity", "", "The bus or student ID.")
	reportKind := reportCmd.String("kind", "bus", "bus or student.")
	reportRoute := reportCmd.String("route", "", "The route ID.")
	reportLat := reportCmd.String("lat", "", "Latitude; omit with -lng for an unknown position.")
	reportLng := reportCmd.String("lng", "", "Longitude.")

	purgeCmd := flag.NewFlagSet("purge", flag.ContinueOnError)
	purgeCmd.SetOutput(cli.out)
	purgeEntity := purgeCmd.String("entity", "", "The bus or student ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenSubject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSubject, *tokenUsername, *tokenAdmin, splitRoles(*tokenRoles))
	case "report":
		if err := reportCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *reportEntity == "" {
			reportCmd.Usage()
			return errHelp
		}
		return cli.report(*reportEntity, *reportKind, *reportRoute, *reportLat, *reportLng)
	case "purge":
		if err := purgeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *purgeEntity == "" {
			purgeCmd.Usage()
			return errHelp
		}
		return cli.purge(*purgeEntity)
	default:
		cli.printUsage()
		return errHelp
	}
}

func splitRoles(s string) []string {
	var roles []string
	for _, role := range strings.Split(s, ",") {
		if role = core.CleanString(role, true); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

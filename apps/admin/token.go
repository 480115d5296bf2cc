package main

import (
	"fmt"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/schoolbus/apps/api/echo"
)

// token prints a signed API token for client `subject`.
func (cli *commandLine) token(subject, username string, isAdmin bool, roles []string) error {
	claims := echoapi.NewClaims(cli.conf, subject, username, isAdmin, roles...)
	token, err := echoapi.GenerateToken(cli.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

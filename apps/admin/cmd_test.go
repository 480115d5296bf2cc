package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/schoolbus/apps/api/echo"
	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
	inmemdb "github.com/trezcool/schoolbus/storage/database/inmem"
	testutil "github.com/trezcool/schoolbus/tests"
)

func setup(t *testing.T) (*commandLine, *inmemdb.LocationRepository, *bytes.Buffer) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	tracking.InitValidators(validate, translator)

	repo := inmemdb.NewLocationRepository(inmemdb.Open())
	var out bytes.Buffer
	return &commandLine{
		conf:     core.NewTestConfig(),
		repo:     repo,
		validate: validate,
		out:      &out,
	}, repo, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if errors.Cause(err) != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_help(t *testing.T) {
	cli, _, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"token", "-lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Contains(t, out.String(), "Usage:")
}

func Test_needsDB(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{args: []string{"admin"}},
		{args: []string{"admin", "token", "-subject", "x"}},
		{args: []string{"admin", "migrate", "up"}, want: true},
		{args: []string{"admin", "report", "-entity", "bus-1"}, want: true},
		{args: []string{"admin", "purge", "-entity", "bus-1"}, want: true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			if got := needsDB(tt.args); got != tt.want {
				t.Errorf("needsDB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	var ran []string
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down", "redo", "status", "version"}, ran)
}

func Test_commandLine_token(t *testing.T) {
	cli, _, out := setup(t)

	tests := []cliTest{
		{name: "no subject", args: []string{"token"}, wantErr: errHelp},
		{name: "client", args: []string{"token", "-subject", "parent-app", "-username", "Parents"}},
		{name: "admin", args: []string{"token", "-subject", "ops", "-admin", "-roles", " Dispatch, transport,"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}

			var claims echoapi.Claims
			_, err = jwt.ParseWithClaims(strings.TrimSpace(out.String()), &claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(cli.conf.SecretKey), nil
			})
			require.NoError(t, err)
			assert.Equal(t, args[3], claims.Subject)
			assert.Equal(t, cli.conf.AppName, claims.Issuer)
			if tt.name == "admin" {
				assert.True(t, claims.IsAdmin)
				assert.Equal(t, []string{"dispatch", "transport"}, claims.Roles)
			} else {
				assert.False(t, claims.IsAdmin)
				assert.Equal(t, "Parents", claims.Username)
			}
		})
	}
}

func Test_commandLine_report(t *testing.T) {
	cli, repo, _ := setup(t)

	tests := []cliTest{
		{name: "no entity", args: []string{"report"}, wantErr: errHelp},
		{name: "bad lat", args: []string{"report", "-entity", "bus-1", "-lat", "north", "-lng", "1"}, wantErrStr: "strconv.ParseFloat: parsing \"north\": invalid syntax"},
		{name: "half position", args: []string{"report", "-entity", "bus-1", "-lat", "1"}, wantErrStr: "lng: this field is required"},
		{name: "bad kind", args: []string{"report", "-entity", "bus-1", "-kind", "car"}},
		{name: "bus", args: []string{"report", "-entity", "bus-1", "-route", "r1", "-lat", "-4.32", "-lng", "15.31"}},
		{name: "student without position", args: []string{"report", "-entity", "stu-1", "-kind", "student"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.name == "bad kind" {
				var verrs validator.ValidationErrors
				assert.True(t, errors.As(err, &verrs), "got %v", err)
				return
			}
			tt.check(t, err)
		})
	}

	reports, err := repo.LatestReports(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "bus-1", reports[0].EntityID)
	assert.Equal(t, "r1", reports[0].RouteID)
	assert.Equal(t, -4.32, *reports[0].Lat)
	assert.Equal(t, tracking.KindStudent, reports[1].Kind)
	assert.Nil(t, reports[1].Lat)
}

func Test_commandLine_purge(t *testing.T) {
	cli, repo, _ := setup(t)
	testutil.RecordReports(t, repo,
		testutil.NewBusReport("bus-1", "r1", 1, 1),
		testutil.NewBusReport("bus-1", "r1", 2, 2),
	)

	tests := []cliTest{
		{name: "no entity", args: []string{"purge"}, wantErr: errHelp},
		{name: "purge", args: []string{"purge", "-entity", "bus-1"}},
		{name: "unknown", args: []string{"purge", "-entity", "bus-1"}, wantErr: tracking.ErrNotFound},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/schoolbus/apps/api/echo"
	"github.com/trezcool/schoolbus/core"
)

func parseCoordinate(field, s string) (*float64, error) {
	if s = core.CleanString(s); s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: field, Error: "must be a number"})
	}
	return &f, nil
}

// report records a location report, picked up by the API on its next database feed poll.
func (cli *commandLine) report(entityID, kind, routeID, lat, lng string) error {
	data := echoapi.ReportRequest{EntityID: entityID, Kind: kind, RouteID: routeID}

	var err error
	if data.Lat, err = parseCoordinate("lat", lat); err != nil {
		return err
	}
	if data.Lng, err = parseCoordinate("lng", lng); err != nil {
		return err
	}
	if err = data.Validate(cli.validate); err != nil {
		return err
	}

	report := data.Report(time.Now())
	if err = cli.repo.RecordReport(context.Background(), report); err != nil {
		return errors.Wrap(err, "recording report")
	}
	fmt.Fprintf(cli.out, "recorded %s %q\n", report.Kind, report.EntityID)
	return nil
}

// purge deletes every report of entity `entityID`.
func (cli *commandLine) purge(entityID string) error {
	if err := cli.repo.DeleteEntity(context.Background(), core.CleanString(entityID)); err != nil {
		return errors.Wrap(err, "deleting entity reports")
	}
	fmt.Fprintf(cli.out, "purged %q\n", entityID)
	return nil
}

package echoapi

import (
	"fmt"
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
	"github.com/trezcool/schoolbus/services/feed"
)

type trackingApi struct {
	svc        *tracking.Service
	reports    feed.Repository
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
	upgrader   websocket.Upgrader
	now        func() time.Time
}

func registerTrackingAPI(g *echo.Group, conf *core.Config, deps Deps) {
	api := trackingApi{
		svc:        deps.TrackingSvc,
		reports:    deps.Reports,
		logger:     deps.Logger,
		validate:   deps.Validate,
		translator: deps.Translator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}

	tg := g.Group("/tracking")

	// browsers cannot set headers on websocket requests
	tg.GET("/stream", api.stream, middleware.JWTWithConfig(jwtConfig(conf, "query:"+tokenQueryParam)))

	ag := tg.Group("", middleware.JWTWithConfig(jwtConfig(conf, "")))
	ag.GET("/markers", api.queryMarkers)
	ag.GET("/markers/:id", api.retrieveMarker)
	ag.POST("/markers/:id/click", api.clickMarker)
	ag.POST("/reports", api.createReport)
	ag.PUT("/selection", api.selectEntity)
	ag.PUT("/route", api.showRoute)
	ag.GET("/map-type", api.retrieveMapType)
	ag.PUT("/map-type", api.updateMapType)
	ag.GET("/stats", api.stats, adminMiddleware())
	ag.DELETE("/entities/:id", api.destroyEntity, adminMiddleware())
}

// Requests

type (
	ReportRequest struct {
		EntityID   string     `json:"entity_id" validate:"required,identifier"`
		Kind       string     `json:"kind" validate:"omitempty,kind"`
		RouteID    string     `json:"route_id" validate:"omitempty,identifier"`
		Lat        *float64   `json:"lat" validate:"omitempty,gte=-90,lte=90"`
		Lng        *float64   `json:"lng" validate:"omitempty,gte=-180,lte=180"`
		RecordedAt *time.Time `json:"recorded_at"`
	}

	SelectionRequest struct {
		EntityID string `json:"entity_id" validate:"omitempty,identifier"`
	}

	RouteRequest struct {
		RouteID string `json:"route_id" validate:"omitempty,identifier"`
	}

	MapTypeRequest struct {
		MapType string `json:"map_type" validate:"required,maptype"`
	}

	MapTypeResponse struct {
		MapType tracking.MapType `json:"map_type"`
	}
)

func (r *ReportRequest) Validate(validate *validator.Validate) error {
	r.EntityID = core.CleanString(r.EntityID)
	r.Kind = core.CleanString(r.Kind, true)
	r.RouteID = core.CleanString(r.RouteID)

	if err := validate.Struct(r); err != nil {
		return errors.Wrap(err, "validating ReportRequest")
	}
	// a position is both coordinates or none
	if r.Lat != nil && r.Lng == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "lng", Error: "this field is required"})
	}
	if r.Lng != nil && r.Lat == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "lat", Error: "this field is required"})
	}
	return nil
}

// Report returns the tracking.Report of the request, received at `now`.
func (r ReportRequest) Report(now time.Time) tracking.Report {
	rep := tracking.Report{
		EntityID:   r.EntityID,
		Kind:       tracking.Kind(r.Kind),
		RouteID:    r.RouteID,
		Lat:        r.Lat,
		Lng:        r.Lng,
		RecordedAt: now.UTC(),
	}
	if rep.Kind == "" {
		rep.Kind = tracking.KindBus
	}
	if r.RecordedAt != nil && !r.RecordedAt.IsZero() {
		rep.RecordedAt = r.RecordedAt.UTC()
	}
	return rep
}

func (r *SelectionRequest) Validate(validate *validator.Validate) error {
	r.EntityID = core.CleanString(r.EntityID)
	return errors.Wrap(validate.Struct(r), "validating SelectionRequest")
}

func (r *RouteRequest) Validate(validate *validator.Validate) error {
	r.RouteID = core.CleanString(r.RouteID)
	return errors.Wrap(validate.Struct(r), "validating RouteRequest")
}

func (r *MapTypeRequest) Validate(validate *validator.Validate) error {
	r.MapType = core.CleanString(r.MapType, true)
	return errors.Wrap(validate.Struct(r), "validating MapTypeRequest")
}

// Handlers

func (api *trackingApi) queryMarkers(ctx echo.Context) error {
	kind := tracking.Kind(core.CleanString(ctx.QueryParam("kind"), true))
	if kind != "" && !kind.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "kind", Error: "must be one of bus or student"})
	}

	markers, err := api.svc.Markers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying markers")
	}
	if kind != "" {
		filtered := markers[:0]
		for _, m := range markers {
			if m.Kind == kind {
				filtered = append(filtered, m)
			}
		}
		markers = filtered
	}
	return ctx.JSON(http.StatusOK, markers)
}

func (api *trackingApi) retrieveMarker(ctx echo.Context) error {
	marker, err := api.svc.Marker(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving marker")
	}
	return ctx.JSON(http.StatusOK, marker)
}

func (api *trackingApi) clickMarker(ctx echo.Context) error {
	if err := api.svc.Click(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "clicking marker")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackingApi) createReport(ctx echo.Context) error {
	var data ReportRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReportRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	report := data.Report(api.now())
	if api.reports != nil {
		if err := api.reports.RecordReport(ctx.Request().Context(), report); err != nil {
			return errors.Wrap(err, "recording report")
		}
	}
	if err := api.svc.Report(ctx.Request().Context(), report); err != nil {
		return errors.Wrap(err, "applying report")
	}
	return ctx.JSON(http.StatusAccepted, report)
}

func (api *trackingApi) destroyEntity(ctx echo.Context) error {
	id := ctx.Param("id")
	reqCtx := ctx.Request().Context()

	found := true
	if err := api.svc.Remove(reqCtx, id); err != nil {
		if errors.Cause(err) != tracking.ErrNotFound {
			return errors.Wrap(err, "removing entity")
		}
		found = false
	}
	if api.reports != nil {
		switch err := api.reports.DeleteEntity(reqCtx, id); errors.Cause(err) {
		case nil:
			found = true
		case tracking.ErrNotFound:
		default:
			return errors.Wrap(err, "deleting entity reports")
		}
	}
	if !found {
		return errHttpNotFound
	}

	var actor core.Actor
	if claims, err := getContextClaims(ctx); err == nil {
		actor = claims.Actor()
	}
	api.logger.Info(fmt.Sprintf("entity %q removed", id), actor)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackingApi) selectEntity(ctx echo.Context) error {
	var data SelectionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SelectionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.Select(ctx.Request().Context(), data.EntityID); err != nil {
		return errors.Wrap(err, "selecting entity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackingApi) showRoute(ctx echo.Context) error {
	var data RouteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RouteRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ShowRoute(ctx.Request().Context(), data.RouteID); err != nil {
		return errors.Wrap(err, "showing route")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackingApi) retrieveMapType(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, MapTypeResponse{MapType: api.svc.MapType()})
}

func (api *trackingApi) updateMapType(ctx echo.Context) error {
	var data MapTypeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MapTypeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.SetMapType(ctx.Request().Context(), tracking.MapType(data.MapType)); err != nil {
		return errors.Wrap(err, "setting map type")
	}
	return ctx.JSON(http.StatusOK, MapTypeResponse{MapType: api.svc.MapType()})
}

func (api *trackingApi) stats(ctx echo.Context) error {
	st, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}
	return ctx.JSON(http.StatusOK, st)
}

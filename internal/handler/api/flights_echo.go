package api

import (
	"errors"

	"Farenheit/internal/domain/models"
	"Farenheit/internal/usecase"
	xhttp "Farenheit/pkg/http"
	xlogger "Farenheit/pkg/logger"

	"github.com/labstack/echo/v4"
)

// FlightsEchoHandler serves the read API over the pipeline's outputs and
// the alert registration endpoints.
type FlightsEchoHandler struct {
	logger  *xlogger.Logger
	queries *usecase.FlightQueries
	alerts  *usecase.AlertService
}

func NewFlightsEchoHandler(logger *xlogger.Logger, queries *usecase.FlightQueries, alerts *usecase.AlertService) *FlightsEchoHandler {
	return &FlightsEchoHandler{logger: logger, queries: queries, alerts: alerts}
}

func (h *FlightsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/recommendations", h.Recommendation)
	g.GET("/predictions", h.Predictions)
	g.GET("/forecast", h.Forecast)
	g.GET("/prices/history", h.PriceHistory)
	g.POST("/alerts", h.CreateAlert)
	g.DELETE("/alerts/:id", h.DeleteAlert)
}

func (h *FlightsEchoHandler) Recommendation(c echo.Context) error {
	req := &models.RecommendationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	departure, ok := xhttp.ParseDate(req.DepartureDate)
	if !ok {
		return xhttp.AppErrorResponse(c, badDate())
	}

	ctx := c.Request().Context()
	routeID, err := h.queries.ResolveRoute(ctx, req.RouteSelector)
	if err != nil {
		return h.fail(c, "recommendation", err)
	}
	res, err := h.queries.Recommendation(ctx, routeID, departure, models.CabinClass(req.Cabin))
	if err != nil {
		return h.fail(c, "recommendation", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *FlightsEchoHandler) Predictions(c echo.Context) error {
	req := &models.PredictionListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	routeID, err := h.queries.ResolveRoute(ctx, req.RouteSelector)
	if err != nil {
		return h.fail(c, "predictions", err)
	}
	rows, err := h.queries.Predictions(ctx, routeID, models.CabinClass(req.Cabin))
	if err != nil {
		return h.fail(c, "predictions", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlightsEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	departure, ok := xhttp.ParseDate(req.DepartureDate)
	if !ok {
		return xhttp.AppErrorResponse(c, badDate())
	}

	ctx := c.Request().Context()
	routeID, err := h.queries.ResolveRoute(ctx, req.RouteSelector)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	res, err := h.queries.Forecast(ctx, usecase.ForecastParams{
		RouteID:   routeID,
		Departure: departure,
		Cabin:     models.CabinClass(req.Cabin),
		Horizon:   req.Horizon,
	})
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlightsEchoHandler) PriceHistory(c echo.Context) error {
	req := &models.PriceHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	departure, ok := xhttp.ParseDate(req.DepartureDate)
	if !ok {
		return xhttp.AppErrorResponse(c, badDate())
	}

	ctx := c.Request().Context()
	routeID, err := h.queries.ResolveRoute(ctx, req.RouteSelector)
	if err != nil {
		return h.fail(c, "price history", err)
	}
	res, err := h.queries.History(ctx, usecase.HistoryParams{
		RouteID:   routeID,
		Departure: departure,
		Cabin:     models.CabinClass(req.Cabin),
		Airline:   req.Airline,
		Days:      req.Days,
	})
	if err != nil {
		return h.fail(c, "price history", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// fail maps domain errors to API errors. Unexpected errors are logged and
// reported as 500 without detail.
func (h *FlightsEchoHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("%s: not found", op).WithError(err))
	case errors.Is(err, models.ErrInvalidRoute):
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableErrorf("ERR_INVALID_ROUTE", "%s: origin and destination must differ", op).WithError(err))
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableErrorf("ERR_INSUFFICIENT_DATA", "%s: not enough price history", op).WithError(err))
	}
	if h.logger != nil {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, err)
}

func badDate() *xhttp.AppError {
	return xhttp.FieldError("ERR_DATETIME", "departure_date", "departure_date must be YYYY-MM-DD")
}

package api

import (
	"net/http"
	"time"

	"Farenheit/internal/domain/models"
	"Farenheit/internal/usecase"
	xhttp "Farenheit/pkg/http"

	"github.com/labstack/echo/v4"
)

func (h *FlightsEchoHandler) CreateAlert(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !req.TargetPrice.IsPositive() {
		return xhttp.AppErrorResponse(c, xhttp.FieldError("ERR_GT", "target_price", "target_price must be greater than 0"))
	}
	var departure *time.Time
	if req.DepartureDate != "" {
		d, ok := xhttp.ParseDate(req.DepartureDate)
		if !ok {
			return xhttp.AppErrorResponse(c, badDate())
		}
		departure = &d
	}

	res, err := h.alerts.Create(c.Request().Context(), usecase.AlertParams{
		Route:       req.RouteSelector,
		UserID:      req.UserID,
		TargetPrice: req.TargetPrice,
		Cabin:       models.CabinClass(req.Cabin),
		Departure:   departure,
	})
	if err != nil {
		return h.fail(c, "create alert", err)
	}
	return xhttp.DataResponse(c, http.StatusCreated, res)
}

func (h *FlightsEchoHandler) DeleteAlert(c echo.Context) error {
	req := &models.AlertPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.alerts.Delete(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, "delete alert", err)
	}
	return c.NoContent(http.StatusNoContent)
}

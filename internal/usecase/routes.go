package usecase

import (
	"context"
	"fmt"
	"strings"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
)

// resolveRoute looks sel up by id, or ensures the route named by its codes
// when no id is given.
func resolveRoute(ctx context.Context, routes domrepo.RouteStore, sel models.RouteSelector) (*models.Route, error) {
	if sel.RouteID > 0 {
		return routes.Get(ctx, sel.RouteID)
	}
	origin := strings.ToUpper(strings.TrimSpace(sel.Origin))
	dest := strings.ToUpper(strings.TrimSpace(sel.Destination))
	if len(origin) != 3 || len(dest) != 3 || origin == dest {
		return nil, fmt.Errorf("%s-%s: %w", origin, dest, models.ErrInvalidRoute)
	}
	return routes.Ensure(ctx, origin, dest)
}

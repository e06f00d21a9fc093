package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	drepo "Farenheit/internal/domain/repository"
	pkgcache "Farenheit/pkg/cache"
)

const recommendationPrefix = "rec"

// RecommendationCache keeps derived recommendations for the read API.
type RecommendationCache struct {
	svc pkgcache.Service
}

func NewRecommendationCache(svc pkgcache.Service) *RecommendationCache {
	return &RecommendationCache{svc: svc}
}

func RecommendationKey(routeID int64, departure time.Time, cabin models.CabinClass) string {
	return pkgcache.GenerateKeyWithParams(recommendationPrefix, routeID, models.DateOnly(departure).Format("2006-01-02"), cabin)
}

func (c *RecommendationCache) Put(ctx context.Context, rec models.Recommendation, ttl time.Duration) error {
	key := RecommendationKey(rec.RouteID, rec.DepartureDate, rec.CabinClass)
	if err := c.svc.Set(ctx, key, rec, ttl); err != nil {
		return fmt.Errorf("cache recommendation %s: %w", key, err)
	}
	return nil
}

func (c *RecommendationCache) Get(ctx context.Context, routeID int64, departure time.Time, cabin models.CabinClass) (*models.Recommendation, bool, error) {
	var rec models.Recommendation
	err := c.svc.Get(ctx, RecommendationKey(routeID, departure, cabin), &rec)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

var _ drepo.RecommendationCache = (*RecommendationCache)(nil)

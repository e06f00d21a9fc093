package analytics

import (
	"context"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	domsvc "Farenheit/internal/domain/service"
	svcmetrics "Farenheit/internal/service/metrics"
)

const classifierModelName = "classifier"

// HTTPDirectionClassifier calls the model service's price-drop classifier
// with the latest feature row.
type HTTPDirectionClassifier struct{ base *HTTPServiceBase }

func NewHTTPDirectionClassifier(base *HTTPServiceBase) *HTTPDirectionClassifier {
	return &HTTPDirectionClassifier{base: base}
}

type classifierReq struct {
	Route    string             `json:"route"`
	Features map[string]float64 `json:"features"`
}

type classifierResp struct {
	WillDrop   bool    `json:"will_drop"`
	Confidence float64 `json:"confidence"`
}

func (c *HTTPDirectionClassifier) Available(ctx context.Context, route models.Route) bool {
	return c.base.availability(ctx, route).Classifier
}

func (c *HTTPDirectionClassifier) Predict(ctx context.Context, route models.Route, features []models.FeatureRow) (result *domsvc.DirectionPrediction, err error) {
	start := time.Now()
	defer func() { svcmetrics.ObserveModelCall(classifierModelName, start, err) }()

	if len(features) == 0 {
		err = fmt.Errorf("classifier %s: %w", route.Code(), models.ErrInsufficientData)
		return nil, err
	}
	latest := features[len(features)-1].Vector()
	named := make(map[string]float64, len(latest))
	for i, name := range models.FeatureNames {
		named[name] = latest[i]
	}

	var resp classifierResp
	if err = c.base.PostJSONWithRetry(ctx, "/classifier/predict", classifierReq{Route: route.Code(), Features: named}, &resp); err != nil {
		return nil, fmt.Errorf("classifier %s: %w", route.Code(), err)
	}
	conf := resp.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return &domsvc.DirectionPrediction{WillDrop: resp.WillDrop, Confidence: conf}, nil
}

var _ domsvc.DirectionClassifier = (*HTTPDirectionClassifier)(nil)

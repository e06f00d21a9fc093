package forecast

import (
	domsvc "Farenheit/internal/domain/service"
	"Farenheit/pkg/config"
	applogger "Farenheit/pkg/logger"
)

// Select picks the forecaster for this deployment: the ensemble when a model
// service is configured, the statistical forecaster otherwise.
func Select(cfg *config.Config, seasonal domsvc.SeasonalModel, classifier domsvc.DirectionClassifier, l *applogger.Logger) domsvc.Forecaster {
	horizon := cfg.Pipeline.ForecastHorizon
	if cfg.Analytics.ModelServiceURL == "" || seasonal == nil || classifier == nil {
		if l != nil {
			l.Info("using statistical forecaster", applogger.String("model_version", StatisticalVersion))
		}
		return NewStatisticalOnly(horizon)
	}
	if l != nil {
		l.Info("using ensemble forecaster",
			applogger.String("model_version", EnsembleVersion),
			applogger.String("model_service", cfg.Analytics.ModelServiceURL),
		)
	}
	return NewEnsembleWithModels(EnsembleConfig{
		Horizon:             horizon,
		SeasonalReliability: cfg.Analytics.SeasonalReliability,
		MinObservations:     cfg.Analytics.MinObservations,
		Timeout:             cfg.Analytics.Timeout,
	}, seasonal, classifier, l)
}

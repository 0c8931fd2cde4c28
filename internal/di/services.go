package di

import (
	"github.com/aristath/sentinel-alerts/internal/clients/alpaca"
	"github.com/aristath/sentinel-alerts/internal/config"
	"github.com/aristath/sentinel-alerts/internal/events"
	"github.com/aristath/sentinel-alerts/internal/modules/alerts"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/aristath/sentinel-alerts/internal/modules/risk"
	"github.com/aristath/sentinel-alerts/internal/modules/taxlots"
	"github.com/aristath/sentinel-alerts/internal/notification"
	"github.com/aristath/sentinel-alerts/internal/pricing"
	"github.com/rs/zerolog"
)

// InitializeServices builds clients, sinks and services. Repositories must exist.
func InitializeServices(container *Container, cfg *config.Config, overrides Overrides, log zerolog.Logger) {
	container.Events = events.NewManager(log)

	container.Oracle = overrides.Oracle
	container.History = overrides.History
	if container.Oracle == nil {
		oracle := alpaca.NewOracle(alpaca.Config{
			APIKey:    cfg.AlpacaAPIKey,
			APISecret: cfg.AlpacaAPISecret,
			Crypto:    cfg.CryptoSymbols,
		}, log)
		container.Oracle = oracle
		if container.History == nil {
			container.History = oracle
		}
	}

	container.Sink = overrides.Sink
	if container.Sink == nil {
		sinks := notification.NewMultiSink().
			Add("log", notification.NewLogSink(log)).
			Add("inbox", container.Inbox)
		container.Sink = notification.Observe("default", sinks, container.Events)
	}

	container.PortfolioService = portfolio.NewService(container.HoldingRepo, log)
	container.TaxOptimizer = taxlots.NewOptimizer(container.SaleRepo, log)
	container.Planner = rebalancing.NewPlanner(log)
	container.RiskCalculator = risk.NewCalculator(container.PriceHistoryRepo, log)

	container.Evaluator = alerts.NewEvaluator(alerts.EvaluatorDeps{
		Portfolio: container.PortfolioService,
		Harvest:   container.TaxOptimizer,
		Planner:   container.Planner,
		Targets:   container.AllocationRepo,
		Risk:      container.RiskCalculator,
		Sentiment: container.SentimentRepo,
	}, EvaluatorParams(cfg), log)

	container.AlertService = alerts.NewService(
		container.RuleRepo,
		container.Evaluator,
		container.Oracle,
		container.Sink,
		serviceConfig(cfg, container),
		log,
	).WithRecorder(container.AlertHistoryRepo).WithEvents(container.Events)

	log.Debug().Msg("Services initialized")
}

// EvaluatorParams maps configuration onto the analytics parameters used by rule checks.
func EvaluatorParams(cfg *config.Config) alerts.EvaluatorParams {
	return alerts.EvaluatorParams{
		Tax: taxlots.Params{
			TaxRate:          cfg.Tax.Rate,
			ShortTermRate:    cfg.Tax.ShortTermRate,
			LongTermRate:     cfg.Tax.LongTermRate,
			LossFloor:        cfg.Tax.LossFloor,
			HarvestThreshold: cfg.Tax.HarvestThreshold,
			LargeLossCutoff:  cfg.Tax.LargeLossCutoff,
		},
		Rebalance: rebalancing.Params{
			ThresholdPct: cfg.Rebalance.ThresholdPct,
			FeeRate:      cfg.Rebalance.FeeRate,
		},
		Risk: risk.Params{
			RiskFreeRate:    cfg.Risk.RiskFreeRate,
			BenchmarkSymbol: cfg.Risk.BenchmarkSymbol,
			LookbackDays:    cfg.Risk.LookbackDays,
		},
		Currency: cfg.Evaluation.Currency,
	}
}

func serviceConfig(cfg *config.Config, container *Container) alerts.ServiceConfig {
	return alerts.ServiceConfig{
		Price: pricing.Options{
			Timeout: cfg.Evaluation.OracleTimeout,
			TTL:     cfg.Evaluation.PriceCacheTTL,
			Cache:   container.QuoteCache,
		},
		Defaults:    RuleDefaults(cfg),
		Workers:     cfg.Evaluation.Workers,
		SinkTimeout: cfg.Evaluation.SinkTimeout,
	}
}

// RuleDefaults are the values rules fall back to when their config omits them.
func RuleDefaults(cfg *config.Config) alerts.Defaults {
	return alerts.Defaults{
		DCAIntervalDays:       cfg.Alerts.DCAIntervalDays,
		SentimentLowThreshold: cfg.Alerts.SentimentLowThreshold,
		CooldownHours:         float64(cfg.Alerts.CooldownHours),
		RebalanceThresholdPct: cfg.Rebalance.ThresholdPct,
	}
}

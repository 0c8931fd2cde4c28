// Package di wires databases, repositories, services and jobs into a Container.
package di

import (
	"github.com/aristath/sentinel-alerts/internal/clientdata"
	"github.com/aristath/sentinel-alerts/internal/database"
	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/events"
	"github.com/aristath/sentinel-alerts/internal/modules/alerts"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/aristath/sentinel-alerts/internal/modules/risk"
	"github.com/aristath/sentinel-alerts/internal/modules/sentiment"
	"github.com/aristath/sentinel-alerts/internal/modules/taxlots"
	"github.com/aristath/sentinel-alerts/internal/notification"
	"github.com/aristath/sentinel-alerts/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	AlertsDB    *database.DB // alert rules, triggered alert history, notifications
	PortfolioDB *database.DB // holdings, allocation targets, sales, sentiment
	CacheDB     *database.DB // cached quotes
	HistoryDB   *database.DB // daily closes for risk metrics

	// Clients
	Oracle  domain.PriceOracle
	History domain.HistoryProvider // nil when no market data credentials are configured

	// Repositories
	RuleRepo         *alerts.RuleRepository
	AlertHistoryRepo *alerts.HistoryRepository
	HoldingRepo      *portfolio.HoldingRepository
	SaleRepo         *taxlots.SaleRepository
	AllocationRepo   *rebalancing.AllocationRepository
	PriceHistoryRepo *risk.HistoryRepository
	SentimentRepo    *sentiment.Repository
	QuoteCache       *clientdata.QuoteRepository
	Inbox            *notification.Inbox

	// Services
	Events           *events.Manager
	Sink             domain.NotificationSink
	PortfolioService *portfolio.Service
	TaxOptimizer     *taxlots.Optimizer
	Planner          *rebalancing.Planner
	RiskCalculator   *risk.Calculator
	Evaluator        *alerts.Evaluator
	AlertService     *alerts.Service
}

// JobInstances holds the background jobs and the scheduler they are registered on.
type JobInstances struct {
	Scheduler    *scheduler.Scheduler
	Evaluation   *scheduler.EvaluationJob
	Maintenance  *scheduler.MaintenanceJob
	HistorySync  *scheduler.HistorySyncJob // nil without a history provider
	QuoteCleanup *clientdata.CleanupJob
}

// Overrides replaces external collaborators, mainly for tests and offline runs.
type Overrides struct {
	Oracle  domain.PriceOracle
	History domain.HistoryProvider
	Sink    domain.NotificationSink
}

// Databases returns every open database, in initialization order.
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.AlertsDB, c.PortfolioDB, c.CacheDB, c.HistoryDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every open database.
func (c *Container) Close() {
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}

package di

import (
	"github.com/aristath/sentinel-alerts/internal/clientdata"
	"github.com/aristath/sentinel-alerts/internal/modules/alerts"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/aristath/sentinel-alerts/internal/modules/risk"
	"github.com/aristath/sentinel-alerts/internal/modules/sentiment"
	"github.com/aristath/sentinel-alerts/internal/modules/taxlots"
	"github.com/aristath/sentinel-alerts/internal/notification"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates every repository on the container's databases.
func InitializeRepositories(container *Container, log zerolog.Logger) {
	alertsConn := container.AlertsDB.Conn()
	portfolioConn := container.PortfolioDB.Conn()

	container.RuleRepo = alerts.NewRuleRepository(alertsConn, log)
	container.AlertHistoryRepo = alerts.NewHistoryRepository(alertsConn, log)
	container.Inbox = notification.NewInbox(alertsConn, log)

	container.HoldingRepo = portfolio.NewHoldingRepository(portfolioConn, log)
	container.SaleRepo = taxlots.NewSaleRepository(portfolioConn, log)
	container.AllocationRepo = rebalancing.NewAllocationRepository(portfolioConn, log)
	container.SentimentRepo = sentiment.NewRepository(portfolioConn, log)

	container.PriceHistoryRepo = risk.NewHistoryRepository(container.HistoryDB.Conn(), log)
	container.QuoteCache = clientdata.NewQuoteRepository(container.CacheDB.Conn())

	log.Debug().Msg("Repositories initialized")
}

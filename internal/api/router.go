// Package api assembles the HTTP surface of the ledger.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"powershare-ledger/internal/api/handlers"
	"powershare-ledger/internal/api/middleware"
	"powershare-ledger/internal/api/models"
	"powershare-ledger/internal/auth"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/metrics"
)

// Deps are the collaborators the router needs. Metrics may be nil.
type Deps struct {
	Engine   *ledger.Engine
	Auth     auth.Authenticator
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Currency string
}

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	router := gin.New()
	router.Use(middleware.Logger(d.Log, d.Metrics))
	router.Use(middleware.ErrorHandler(d.Log))

	router.GET("/health", handlers.Health)
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	grid := handlers.NewGridHandler(d.Engine)
	pool := handlers.NewEnergyPoolHandler(d.Engine, d.Currency)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAccount(d.Auth, d.Engine, d.Log))
	{
		api.GET("/grid/", grid.ListGrids)
		api.POST("/grid/insert_new", grid.InsertNew)
		api.GET("/grid/get_user_grid", grid.GetUserGrid)
		api.GET("/grid/get_unit_status", grid.GetUnitStatus)
		api.POST("/grid/sell_units", grid.SellUnits)
		api.POST("/grid/update_units", grid.UpdateUnits)
		api.POST("/grid/availability", grid.SetAvailability)

		api.GET("/energypool/", pool.ListOffers)
		api.POST("/energypool/buy", pool.Buy)
		api.GET("/energypool/transactions", pool.Transactions)
		api.GET("/energypool/monthly_energy_summary", pool.MonthlySummary)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: "Not found"},
		})
	})
	return router
}

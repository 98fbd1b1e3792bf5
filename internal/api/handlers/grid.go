package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"powershare-ledger/internal/api/middleware"
	"powershare-ledger/internal/api/models"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
)

// GridHandler handles grid registry requests
type GridHandler struct {
	engine *ledger.Engine
}

// NewGridHandler creates a new grid handler
func NewGridHandler(engine *ledger.Engine) *GridHandler {
	return &GridHandler{engine: engine}
}

// ListGrids handles GET /api/v1/grid/
func (h *GridHandler) ListGrids(c *gin.Context) {
	grids, err := h.engine.ListGrids(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grids)
}

// InsertNew handles POST /api/v1/grid/insert_new
func (h *GridHandler) InsertNew(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)

	var req models.CreateGridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	price := decimal.Zero
	if req.PricePerUnit != "" {
		p, err := decimal.NewFromString(req.PricePerUnit)
		if err != nil {
			badRequest(c, "price_per_unit must be a decimal number")
			return
		}
		price = p
	}

	g, err := h.engine.CreateGrid(c.Request.Context(), account, ledger.NewGrid{
		Name:         req.GridName,
		Location:     *req.Location,
		Units:        req.Units,
		Available:    req.Available,
		PricePerUnit: price,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CreateGridResponse{
		Message: "Grid inserted successfully",
		GridID:  g.ID,
		Grid:    g,
	})
}

// GetUserGrid handles GET /api/v1/grid/get_user_grid
func (h *GridHandler) GetUserGrid(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	g, err := h.engine.GetGrid(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// GetUnitStatus handles GET /api/v1/grid/get_unit_status
func (h *GridHandler) GetUnitStatus(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	st, err := h.engine.UnitStatus(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// SellUnits handles POST /api/v1/grid/sell_units
func (h *GridHandler) SellUnits(c *gin.Context) {
	units, ok := bindUnits(c)
	if !ok {
		return
	}
	account, _ := middleware.AccountFrom(c)
	g, err := h.engine.UpdateOfferedUnits(c.Request.Context(), account.ID, units)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, unitsResponse("Units for sale updated successfully", g))
}

// UpdateUnits handles POST /api/v1/grid/update_units
func (h *GridHandler) UpdateUnits(c *gin.Context) {
	units, ok := bindUnits(c)
	if !ok {
		return
	}
	account, _ := middleware.AccountFrom(c)
	g, err := h.engine.SetTotalUnits(c.Request.Context(), account.ID, units)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, unitsResponse("Units updated successfully", g))
}

// SetAvailability handles POST /api/v1/grid/availability
func (h *GridHandler) SetAvailability(c *gin.Context) {
	var req models.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	account, _ := middleware.AccountFrom(c)
	g, err := h.engine.SetAvailability(c.Request.Context(), account.ID, *req.Available)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, unitsResponse("Availability updated successfully", g))
}

func bindUnits(c *gin.Context) (int64, bool) {
	var req models.UnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return 0, false
	}
	return *req.Units, true
}

func unitsResponse(message string, g model.Grid) models.UnitsResponse {
	return models.UnitsResponse{
		Message:      message,
		Units:        g.Units,
		UnitsForSell: g.ForSale,
		Available:    g.Available,
	}
}

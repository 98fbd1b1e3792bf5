package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"powershare-ledger/internal/api/middleware"
	"powershare-ledger/internal/api/models"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
)

// EnergyPoolHandler handles marketplace, settlement and reporting requests
type EnergyPoolHandler struct {
	engine   *ledger.Engine
	currency string
}

// NewEnergyPoolHandler creates a new energy pool handler
func NewEnergyPoolHandler(engine *ledger.Engine, currency string) *EnergyPoolHandler {
	return &EnergyPoolHandler{engine: engine, currency: currency}
}

// ListOffers handles GET /api/v1/energypool/
//
// The caller's own grid is left out. With ?lat=&lon= the offers are sorted
// nearest first and carry distance_km.
func (h *EnergyPoolHandler) ListOffers(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)

	origin, sortNear, err := parseOrigin(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	offers, err := h.engine.ListOffers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]models.OfferWithDistance, 0, len(offers))
	for _, o := range offers {
		if o.OwnerID == account.ID {
			continue
		}
		out = append(out, models.OfferWithDistance{Offer: o})
	}
	if sortNear {
		sortByDistance(out, origin)
	}
	c.JSON(http.StatusOK, out)
}

// Buy handles POST /api/v1/energypool/buy
func (h *EnergyPoolHandler) Buy(c *gin.Context) {
	var req models.BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	account, _ := middleware.AccountFrom(c)

	r, err := h.engine.Buy(c.Request.Context(), account, req.GridID, req.Units)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.BuyResponse{
		Message:            "Purchase successful",
		Transaction:        r.Transaction,
		BuyerUnits:         r.BuyerUnits,
		SellerUnitsForSell: r.SellerForSale,
		Currency:           h.currency,
	})
}

// Transactions handles GET /api/v1/energypool/transactions
func (h *EnergyPoolHandler) Transactions(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	hist, err := h.engine.TransactionHistory(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

// MonthlySummary handles GET /api/v1/energypool/monthly_energy_summary
func (h *EnergyPoolHandler) MonthlySummary(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	months, err := h.engine.MonthlyEnergySummary(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if months == nil {
		months = []model.MonthlySummary{}
	}
	c.JSON(http.StatusOK, months)
}

// parseOrigin reads the optional lat/lon query pair.
func parseOrigin(c *gin.Context) (model.Location, bool, error) {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" && lonStr == "" {
		return model.Location{}, false, nil
	}
	if latStr == "" || lonStr == "" {
		return model.Location{}, false, errors.New("lat and lon must be given together")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return model.Location{}, false, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return model.Location{}, false, errors.New("lon must be a number")
	}
	loc := model.Location{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		return model.Location{}, false, err
	}
	return loc, true, nil
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"powershare-ledger/internal/api/models"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ledger.ErrInvalidQuantity, http.StatusBadRequest},
		{ledger.ErrInvalidArgument, http.StatusBadRequest},
		{ledger.ErrNotFound, http.StatusNotFound},
		{ledger.ErrAlreadyExists, http.StatusConflict},
		{ledger.ErrInsufficientSupply, http.StatusConflict},
		{ledger.ErrSelfTrade, http.StatusConflict},
		{ledger.ErrUnavailable, http.StatusLocked},
		{ledger.ErrTransient, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", ledger.ErrTransient), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestDistanceKM(t *testing.T) {
	colombo := model.Location{Latitude: 6.9271, Longitude: 79.8612}
	kandy := model.Location{Latitude: 7.2906, Longitude: 80.6337}

	assert.InDelta(t, 94.0, distanceKM(colombo, kandy), 3.0)
	assert.InDelta(t, 0.0, distanceKM(colombo, colombo), 1e-9)
	assert.InDelta(t, distanceKM(colombo, kandy), distanceKM(kandy, colombo), 1e-9)
}

func TestSortByDistanceIsStable(t *testing.T) {
	here := model.Location{Latitude: 0, Longitude: 0}
	offers := []models.OfferWithDistance{
		{Offer: model.Offer{GridID: "far", Location: model.Location{Latitude: 10}}},
		{Offer: model.Offer{GridID: "a", Location: here}},
		{Offer: model.Offer{GridID: "b", Location: here}},
	}
	sortByDistance(offers, here)
	assert.Equal(t, "a", offers[0].GridID)
	assert.Equal(t, "b", offers[1].GridID)
	assert.Equal(t, "far", offers[2].GridID)
}

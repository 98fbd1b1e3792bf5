package handlers

import (
	"math"
	"sort"

	"powershare-ledger/internal/api/models"
	"powershare-ledger/internal/model"
)

const earthRadiusKM = 6371.0

// distanceKM is the great-circle distance between a and b.
func distanceKM(a, b model.Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// sortByDistance annotates offers with their distance from origin and
// orders them nearest first. Ties keep listing order.
func sortByDistance(offers []models.OfferWithDistance, origin model.Location) {
	for i := range offers {
		d := distanceKM(origin, offers[i].Location)
		offers[i].DistanceKM = &d
	}
	sort.SliceStable(offers, func(i, j int) bool {
		return *offers[i].DistanceKM < *offers[j].DistanceKM
	})
}

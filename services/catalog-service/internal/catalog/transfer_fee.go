package catalog

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var ErrNoLocation = errors.New("service has no location")

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between two points.
func HaversineKm(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

type TransferQuote struct {
	DistanceKm decimal.Decimal `json:"distance_km"`
	BillableKm decimal.Decimal `json:"billable_km"`
	Fee        decimal.Decimal `json:"fee"`
}

// QuoteTransferFee charges cost_per_km for every km beyond the free radius.
func QuoteTransferFee(s Service, to Location) (TransferQuote, error) {
	if s.Location == nil {
		return TransferQuote{}, ErrNoLocation
	}
	if math.Abs(to.Latitude) > 90 || math.Abs(to.Longitude) > 180 {
		return TransferQuote{}, ErrInvalidLocation
	}
	km := decimal.NewFromFloat(HaversineKm(*s.Location, to))
	billable := km.Sub(s.TransferFeeRule.FreeKmRadius)
	if billable.IsNegative() {
		billable = decimal.Zero
	}
	return TransferQuote{
		DistanceKm: km.Round(2),
		BillableKm: billable.Round(2),
		Fee:        billable.Mul(s.TransferFeeRule.CostPerKm).Round(2),
	}, nil
}

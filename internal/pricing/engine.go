package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/viaentrega/viaentrega-backend/pkg/config"
)

// Engine prices a corrida from its package count and route distance.
// It is pure: no I/O, no clock, same inputs always produce the same price.
type Engine struct {
	minValuePerPackage decimal.Decimal
	baseDistanceKm     decimal.Decimal
	extraKmRate        decimal.Decimal
}

// NewEngine builds an Engine from the configured pricing table.
func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{
		minValuePerPackage: decimal.NewFromInt(cfg.MinValuePerPackageCents),
		baseDistanceKm:     decimal.NewFromFloat(cfg.BaseDistanceKm),
		extraKmRate:        decimal.NewFromInt(cfg.ExtraKmRateCents),
	}
}

// Price returns the corrida price in centavos.
//
// price = packages × minValuePerPackage, plus (distance − baseDistance) ×
// extraKmRate for the kilometers beyond the base distance. The result is
// rounded half-up to the centavo. packageCount <= 0 is a caller contract
// violation and is not validated here.
func (e *Engine) Price(packageCount int, distanceKm float64) int64 {
	total := e.minValuePerPackage.Mul(decimal.NewFromInt(int64(packageCount)))

	extra := decimal.NewFromFloat(distanceKm).Sub(e.baseDistanceKm)
	if extra.IsPositive() {
		total = total.Add(extra.Mul(e.extraKmRate))
	}

	return total.Round(0).IntPart()
}

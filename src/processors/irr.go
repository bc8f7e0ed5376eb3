// backend/src/processors/irr.go
package processors

import (
	"math"
	"sort"

	"github.com/username/crowdvest/backend/src/models"
)

const (
	irrInitialRate   = 0.10
	irrMaxIterations = 50
	irrTolerance     = 1e-6
	irrDaysPerYear   = 365.0
)

// ComputeIRR computes the annualised internal rate of return of a dated
// cash-flow series using Newton-Raphson iteration on its net present value.
// Day-count is actual/365 from the earliest flow; the input order does not
// matter (a copy is sorted internally).
//
// The second return value is false when no rate is defined: an empty series,
// a series without at least one inflow and one outflow, a zero derivative,
// or a non-finite update. This is a root-finding approximation, not a closed
// form — pathological shapes (e.g. multiple sign changes) may fail to
// converge, and "undefined" is then the expected result, not a defect.
func ComputeIRR(cashFlows []models.CashFlow) (float64, bool) {
	if len(cashFlows) == 0 {
		return 0, false
	}

	hasNeg, hasPos := false, false
	for _, f := range cashFlows {
		if f.Amount < 0 {
			hasNeg = true
		}
		if f.Amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return 0, false
	}

	flows := make([]models.CashFlow, len(cashFlows))
	copy(flows, cashFlows)
	sort.Slice(flows, func(i, j int) bool {
		return flows[i].Date.Before(flows[j].Date)
	})

	// Year offsets relative to the earliest flow.
	origin := flows[0].Date
	years := make([]float64, len(flows))
	for i, f := range flows {
		days := f.Date.Sub(origin).Hours() / 24
		years[i] = days / irrDaysPerYear
	}

	rate := irrInitialRate
	for iter := 0; iter < irrMaxIterations; iter++ {
		base := 1 + rate
		if base <= 0 {
			// Discounting is undefined at or below -100%.
			return 0, false
		}

		npv := 0.0
		dnpv := 0.0
		for i, f := range flows {
			discount := math.Pow(base, years[i])
			if discount == 0 {
				continue
			}
			npv += f.Amount / discount
			if years[i] != 0 {
				dnpv -= years[i] * f.Amount / (discount * base)
			}
		}

		if dnpv == 0 {
			return 0, false
		}

		next := rate - npv/dnpv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if math.Abs(next-rate) < irrTolerance {
			return next, true
		}
		rate = next
	}

	// Did not converge within the iteration budget.
	return 0, false
}

package core

import (
	"slices"
	"time"
)

// Summary holds the dashboard totals.
type Summary struct {
	TotalRevenue         Money             `json:"totalRevenue"`
	TotalCostOfGoodsSold Money             `json:"totalCostOfGoodsSold"`
	TotalNetProfit       Money             `json:"totalNetProfit"`
	TotalInventoryCost   Money             `json:"totalInventoryCost"`
	OverallBalance       Money             `json:"overallBalance"`
	UnsoldRecords        []InventoryRecord `json:"unsoldRecords"`
}

// ProductProfit is one bar of the profit-per-product report.
type ProductProfit struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Profit Money  `json:"profit"`
}

// RevenueCost is one entry of the revenue versus acquisition cost report.
type RevenueCost struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Revenue Money  `json:"revenue"`
	Cost    Money  `json:"cost"`
}

// Dashboard is the full view recomputed on every snapshot.
type Dashboard struct {
	Period        string          `json:"period"`
	Summary       Summary         `json:"summary"`
	ProfitRanking []ProductProfit `json:"profitRanking"`
	RevenueCost   []RevenueCost   `json:"revenueCost"`
	RecordCount   int             `json:"recordCount"`
}

// ComputeSummary aggregates every field over the same record set.
func ComputeSummary(records []InventoryRecord) Summary {
	return ComputePeriodSummary(records, records)
}

// ComputePeriodSummary aggregates sales figures (revenue, cost of goods
// sold, net profit) over scoped, and capital figures (inventory cost,
// overall balance, unsold records) over all.
func ComputePeriodSummary(all, scoped []InventoryRecord) Summary {
	s := Summary{
		TotalRevenue:         Zero,
		TotalCostOfGoodsSold: Zero,
		TotalInventoryCost:   Zero,
		UnsoldRecords:        []InventoryRecord{},
	}

	for _, r := range scoped {
		s.TotalRevenue = s.TotalRevenue.Add(r.Revenue())
		s.TotalCostOfGoodsSold = s.TotalCostOfGoodsSold.Add(r.CostOfGoodsSold())
	}
	s.TotalNetProfit = s.TotalRevenue.Sub(s.TotalCostOfGoodsSold)

	allTimeRevenue := Zero
	for _, r := range all {
		allTimeRevenue = allTimeRevenue.Add(r.Revenue())
		s.TotalInventoryCost = s.TotalInventoryCost.Add(r.AcquisitionCost())
		if r.QuantitySold == 0 {
			s.UnsoldRecords = append(s.UnsoldRecords, r)
		}
	}
	s.OverallBalance = allTimeRevenue.Sub(s.TotalInventoryCost)

	return s
}

// ProfitRanking lists records with a nonzero total profit, highest first.
// Ties keep input order.
func ProfitRanking(records []InventoryRecord) []ProductProfit {
	out := make([]ProductProfit, 0, len(records))
	for _, r := range records {
		p := r.TotalProfit()
		if p.IsZero() {
			continue
		}
		out = append(out, ProductProfit{ID: r.ID, Name: r.Name, Profit: p})
	}
	slices.SortStableFunc(out, func(a, b ProductProfit) int {
		return b.Profit.Cmp(a.Profit)
	})
	return out
}

// RevenueCostSeries pairs each record's revenue with its acquisition cost,
// skipping records where both are zero.
func RevenueCostSeries(records []InventoryRecord) []RevenueCost {
	out := make([]RevenueCost, 0, len(records))
	for _, r := range records {
		rc := RevenueCost{ID: r.ID, Name: r.Name, Revenue: r.Revenue(), Cost: r.AcquisitionCost()}
		if rc.Revenue.IsZero() && rc.Cost.IsZero() {
			continue
		}
		out = append(out, rc)
	}
	return out
}

// BuildDashboard filters all by p and aggregates the result.
func BuildDashboard(all []InventoryRecord, p Period, now time.Time, loc *time.Location) Dashboard {
	scoped := SelectByPeriod(all, p, now, loc)
	return Dashboard{
		Period:        p.String(),
		Summary:       ComputePeriodSummary(all, scoped),
		ProfitRanking: ProfitRanking(scoped),
		RevenueCost:   RevenueCostSeries(scoped),
		RecordCount:   len(scoped),
	}
}

// Package report aggregates sales, return requests and payments fetched from
// the backend into balances and date-range sales reports.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salesdesk/internal/domain"
)

// Namer resolves display names; *catalog.Snapshot satisfies it.
type Namer interface {
	AccountName(id int64) string
}

// ParseRange validates a YYYY-MM-DD range. An empty to means today and an
// empty from means the first day of to's month.
func ParseRange(from string, to string, now time.Time) (string, string, error) {
	const op = "report.range"

	end := now.Format(domain.DateLayout)
	if to != "" {
		parsed, err := time.Parse(domain.DateLayout, to)
		if err != nil {
			return "", "", domain.NewValidationError(op, domain.FieldDate, "to must be YYYY-MM-DD")
		}
		end = parsed.Format(domain.DateLayout)
	}
	endDate, _ := time.Parse(domain.DateLayout, end)

	start := time.Date(endDate.Year(), endDate.Month(), 1, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
	if from != "" {
		parsed, err := time.Parse(domain.DateLayout, from)
		if err != nil {
			return "", "", domain.NewValidationError(op, domain.FieldDate, "from must be YYYY-MM-DD")
		}
		start = parsed.Format(domain.DateLayout)
	}
	if start > end {
		return "", "", domain.NewValidationError(op, domain.FieldDate, "from is after to")
	}
	return start, end, nil
}

// Sales builds the sales report for [from, to]. Sales outside the range are
// ignored even if the backend returned them.
func Sales(from string, to string, sales []domain.Sale, names Namer) domain.SalesReport {
	report := domain.SalesReport{
		From:           from,
		To:             to,
		TotalSum:       decimal.Zero,
		ByDay:          []domain.SalesReportDay{},
		ByCounterparty: []domain.SalesReportCounterparty{},
	}

	days := make(map[string]*domain.SalesReportDay)
	parties := make(map[int64]*domain.SalesReportCounterparty)

	for _, sale := range sales {
		if sale.Date < from || sale.Date > to {
			continue
		}
		items := 0
		for _, line := range sale.Lines {
			items += line.Quantity
		}

		report.Sales++
		report.Items += items
		report.TotalSum = report.TotalSum.Add(sale.TotalSum)

		day, ok := days[sale.Date]
		if !ok {
			day = &domain.SalesReportDay{Date: sale.Date, TotalSum: decimal.Zero}
			days[sale.Date] = day
		}
		day.Sales++
		day.Items += items
		day.TotalSum = day.TotalSum.Add(sale.TotalSum)

		party, ok := parties[sale.CounterpartyID]
		if !ok {
			party = &domain.SalesReportCounterparty{CounterpartyID: sale.CounterpartyID, TotalSum: decimal.Zero}
			if names != nil {
				party.Name = names.AccountName(sale.CounterpartyID)
			}
			parties[sale.CounterpartyID] = party
		}
		party.Sales++
		party.TotalSum = party.TotalSum.Add(sale.TotalSum)
	}

	for _, day := range days {
		report.ByDay = append(report.ByDay, *day)
	}
	sort.Slice(report.ByDay, func(i, j int) bool { return report.ByDay[i].Date < report.ByDay[j].Date })

	for _, party := range parties {
		report.ByCounterparty = append(report.ByCounterparty, *party)
	}
	sort.Slice(report.ByCounterparty, func(i, j int) bool {
		a, b := report.ByCounterparty[i], report.ByCounterparty[j]
		if !a.TotalSum.Equal(b.TotalSum) {
			return a.TotalSum.GreaterThan(b.TotalSum)
		}
		return a.CounterpartyID < b.CounterpartyID
	})

	return report
}

// Balances computes, for every visible counterparty, what it owes: sales
// minus approved returns minus payments. Pending and rejected return requests
// do not count.
func Balances(accounts []domain.Account, sales []domain.Sale, returns []domain.DealerReturnRequest, payments []domain.Payment) []domain.Balance {
	out := make([]domain.Balance, 0, len(accounts))
	index := make(map[int64]int, len(accounts))
	for _, account := range accounts {
		index[account.ID] = len(out)
		out = append(out, domain.Balance{
			CounterpartyID: account.ID,
			Name:           account.DisplayName(),
			SalesTotal:     decimal.Zero,
			ReturnsTotal:   decimal.Zero,
			PaymentsTotal:  decimal.Zero,
		})
	}

	for _, sale := range sales {
		if i, ok := index[sale.CounterpartyID]; ok {
			out[i].SalesTotal = out[i].SalesTotal.Add(sale.TotalSum)
		}
	}
	for _, ret := range returns {
		if ret.Status != domain.ReturnApproved {
			continue
		}
		if i, ok := index[ret.CounterpartyID]; ok {
			out[i].ReturnsTotal = out[i].ReturnsTotal.Add(ret.TotalSum)
		}
	}
	for _, payment := range payments {
		if i, ok := index[payment.CounterpartyID]; ok {
			out[i].PaymentsTotal = out[i].PaymentsTotal.Add(payment.Amount)
		}
	}

	for i := range out {
		out[i].Outstanding = out[i].SalesTotal.Sub(out[i].ReturnsTotal).Sub(out[i].PaymentsTotal)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Outstanding.GreaterThan(out[j].Outstanding)
	})
	return out
}

package services

import (
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
)

// DashboardStats summarizes an invoice collection.
type DashboardStats struct {
	Total          int
	Overdue        int
	MonthlyRevenue models.Amount
}

// ComputeStats counts all invoices, the pending ones past due, and sums the
// paid invoices created in the calendar month of now.
func ComputeStats(invoices []models.Invoice, now time.Time) DashboardStats {
	st := DashboardStats{Total: len(invoices)}
	for _, inv := range invoices {
		if inv.IsOverdue(now) {
			st.Overdue++
		}
		if inv.Status == models.InvoiceStatusPaid && sameMonth(inv.CreatedAt.Time.In(now.Location()), now) {
			st.MonthlyRevenue = st.MonthlyRevenue.Add(inv.Amount)
		}
	}
	return st
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

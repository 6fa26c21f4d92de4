package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/services"
)

// stateError prints a synchronizer's error message, or err when it has none.
func (a *App) stateError(msg string, err error) error {
	if msg != "" {
		a.out.Error("%s", msg)
	} else {
		a.out.Error("%v", err)
	}
	return err
}

// Dashboard prints the totals computed from a fresh invoice list.
func (a *App) Dashboard(ctx context.Context) error {
	if !a.requireAuth() {
		return errNotLoggedIn
	}
	a.Navigate(services.RouteDashboard)

	if err := a.invoices.Load(ctx); err != nil {
		return a.stateError(a.invoices.Snapshot().Error, err)
	}
	st := services.ComputeStats(a.invoices.Snapshot().Data, time.Now())

	a.out.Title("Dashboard")
	return a.out.Table([]string{"Metric", "Value"}, [][]string{
		{"Total invoices", fmt.Sprint(st.Total)},
		{"Overdue", fmt.Sprint(st.Overdue)},
		{"Revenue this month", st.MonthlyRevenue.USD()},
	})
}

func (a *App) List(ctx context.Context) error {
	if !a.requireAuth() {
		return errNotLoggedIn
	}
	a.Navigate(services.RouteInvoices)

	if err := a.invoices.Load(ctx); err != nil {
		return a.stateError(a.invoices.Snapshot().Error, err)
	}
	return a.out.Invoices(a.invoices.Snapshot().Data)
}

func (a *App) Show(ctx context.Context, invoiceNumber string) error {
	if !a.requireAuth() {
		return errNotLoggedIn
	}
	a.Navigate(services.RouteInvoices + services.Route("/"+invoiceNumber))

	if err := a.detail.Load(ctx, invoiceNumber); err != nil {
		return a.stateError(a.detail.Snapshot().Error, err)
	}
	inv := a.detail.Snapshot().Data
	if inv == nil {
		return a.stateError(services.MsgInvoiceNotFound, services.ErrNoInvoiceBound)
	}
	return a.out.Invoice(*inv)
}

// Add prompts for a new invoice and creates it.
func (a *App) Add(ctx context.Context) error {
	if !a.requireAuth() {
		return errNotLoggedIn
	}
	a.Navigate(services.RouteInvoices + "/new")

	v, err := a.prompt("Invoice number", "Description", "Amount", "Due date (YYYY-MM-DD)")
	if err != nil {
		return err
	}
	amount, err := models.ParseAmount(v[2])
	if err != nil {
		a.out.Error("Amount must be a number.")
		return err
	}
	due, err := parseDueDate(v[3])
	if err != nil {
		a.out.Error("Due date must be in YYYY-MM-DD format.")
		return err
	}

	data := models.CreateInvoiceData{
		InvoiceNumber: v[0],
		Description:   v[1],
		Amount:        amount,
		DueDate:       due,
	}
	if err := a.invoices.Create(ctx, data); err != nil {
		return a.stateError(a.invoices.Snapshot().Error, err)
	}

	a.out.Success("Invoice %s created.", strings.TrimSpace(data.InvoiceNumber))
	a.Navigate(services.RouteInvoices)
	return a.out.Invoices(a.invoices.Snapshot().Data)
}

// Edit loads an invoice, prompts for new values with the current ones as
// defaults, and saves it.
func (a *App) Edit(ctx context.Context, invoiceNumber string) error {
	if !a.requireAuth() {
		return errNotLoggedIn
	}
	a.Navigate(services.RouteInvoices + services.Route("/"+invoiceNumber+"/edit"))

	if err := a.detail.Load(ctx, invoiceNumber); err != nil {
		return a.stateError(a.detail.Snapshot().Error, err)
	}
	inv := a.detail.Snapshot().Data
	if inv == nil {
		return a.stateError(services.MsgInvoiceNotFound, services.ErrNoInvoiceBound)
	}

	data := models.UpdateFrom(*inv)
	w := a.out.out

	var err error
	if data.Description, err = GetDefaultText(a.reader, "Description", inv.Description, w); err != nil {
		return err
	}
	raw, err := GetDefaultText(a.reader, "Amount", inv.Amount.String(), w)
	if err != nil {
		return err
	}
	if data.Amount, err = models.ParseAmount(raw); err != nil {
		a.out.Error("Amount must be a number.")
		return err
	}
	if raw, err = GetDefaultText(a.reader, "Due date (YYYY-MM-DD)", inv.DueDate.String(), w); err != nil {
		return err
	}
	if data.DueDate, err = parseDueDate(raw); err != nil {
		a.out.Error("Due date must be in YYYY-MM-DD format.")
		return err
	}
	if raw, err = GetDefaultText(a.reader, "Status (Pending, Paid, Overdue)", string(inv.Status), w); err != nil {
		return err
	}
	// Status is computed by the server; only an explicit change is sent.
	if st := models.InvoiceStatus(raw); st != inv.Status {
		data.Status = st
	}

	if err := a.detail.Save(ctx, data); err != nil {
		return a.stateError(a.detail.Snapshot().Error, err)
	}

	a.out.Success("Invoice %s updated.", invoiceNumber)
	if updated := a.detail.Snapshot().Data; updated != nil {
		return a.out.Invoice(*updated)
	}
	return nil
}

// Delete removes an invoice after the user confirms.
func (a *App) Delete(ctx context.Context, invoiceNumber string) error {
	if !a.requireAuth() {
		return errNotLoggedIn
	}

	err := a.invoices.Remove(ctx, invoiceNumber, a.confirmDelete)
	switch {
	case errors.Is(err, services.ErrNotConfirmed):
		a.out.Info("Cancelled.")
		return err
	case err != nil:
		return a.stateError(a.invoices.Snapshot().Error, err)
	}

	a.out.Success("Invoice %s deleted.", invoiceNumber)
	return nil
}

func (a *App) confirmDelete(invoiceNumber string) bool {
	return GetConfirm(a.reader, fmt.Sprintf("Are you sure you want to delete invoice %s?", invoiceNumber), a.out.out)
}

// parseDueDate accepts YYYY-MM-DD only; the richer timestamp layouts of
// models.ParseDate are meant for server payloads.
func parseDueDate(s string) (models.Date, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return models.Date{}, err
	}
	return models.NewDate(t.Year(), t.Month(), t.Day()), nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/validation"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
)

// ConfirmFunc asks the user to confirm deleting an invoice.
type ConfirmFunc func(invoiceNumber string) bool

// InvoiceList keeps the full invoice collection in sync with the server.
// Every successful mutation is followed by a full reload; a reload racing a
// concurrent writer may not reflect the mutation that triggered it.
type InvoiceList struct {
	resource[[]models.Invoice]

	client   client.Client
	validate *validation.Validator
	log      logging.Logger
}

func NewInvoiceList(c client.Client, v *validation.Validator, log logging.Logger) *InvoiceList {
	l := &InvoiceList{
		client:   c,
		validate: v,
		log:      log.With("component", "invoice_list"),
	}
	l.state.Data = []models.Invoice{}
	l.clone = func(in []models.Invoice) []models.Invoice { return slices.Clone(in) }
	return l
}

// Load fetches the whole collection. On failure the cache is emptied and
// Error is set.
func (l *InvoiceList) Load(ctx context.Context) error {
	seq := l.beginLoad()
	return l.load(ctx, seq)
}

func (l *InvoiceList) load(ctx context.Context, seq uint64) error {
	invoices, err := l.client.ListInvoices(ctx)
	if err != nil {
		l.log.Warn(ctx, "fetching invoices failed", "kind", client.KindOf(err).String(), "error", err)
		l.finishLoad(seq, func(s *State[[]models.Invoice]) {
			s.Data = []models.Invoice{}
			s.Error = MsgFetchInvoices
		})
		return fmt.Errorf("list invoices: %w", err)
	}

	if !l.finishLoad(seq, func(s *State[[]models.Invoice]) {
		s.Data = invoices
		s.Error = ""
	}) {
		l.log.Debug(ctx, "discarded stale invoice list", "seq", seq)
	}
	return nil
}

// Create submits a new invoice and reloads the collection. A failed reload
// is reported through State.Error only; the invoice exists at that point.
func (l *InvoiceList) Create(ctx context.Context, data models.CreateInvoiceData) error {
	data.InvoiceNumber = strings.TrimSpace(data.InvoiceNumber)
	if err := l.validate.Validate(data); err != nil {
		l.setError(resourceMessage(err, MsgCreateInvoice))
		return asClientError(err)
	}

	l.beginMutation()
	created, err := l.client.CreateInvoice(ctx, data)
	if err != nil {
		l.log.Warn(ctx, "creating invoice failed", "invoice_number", data.InvoiceNumber, "kind", client.KindOf(err).String(), "error", err)
		l.endMutation(resourceMessage(err, MsgCreateInvoice))
		return fmt.Errorf("create invoice: %w", err)
	}
	l.log.Info(ctx, "invoice created", "invoice_number", created.InvoiceNumber)

	seq := l.beginLoad()
	l.endMutation("")
	_ = l.load(ctx, seq)
	return nil
}

// Remove deletes an invoice after confirm approves it. Without approval no
// request is made and ErrNotConfirmed is returned.
func (l *InvoiceList) Remove(ctx context.Context, invoiceNumber string, confirm ConfirmFunc) error {
	if confirm == nil || !confirm(invoiceNumber) {
		return ErrNotConfirmed
	}

	l.beginMutation()
	if err := l.client.DeleteInvoice(ctx, invoiceNumber); err != nil {
		l.log.Warn(ctx, "deleting invoice failed", "invoice_number", invoiceNumber, "kind", client.KindOf(err).String(), "error", err)
		msg := resourceMessage(err, MsgDeleteInvoice)
		if errors.Is(err, client.ErrNotFound) {
			msg = MsgInvoiceNotFound
		}
		l.endMutation(msg)
		return fmt.Errorf("delete invoice: %w", err)
	}
	l.log.Info(ctx, "invoice deleted", "invoice_number", invoiceNumber)

	seq := l.beginLoad()
	l.endMutation("")
	_ = l.load(ctx, seq)
	return nil
}

// InvoiceDetail keeps one invoice, bound by its number, in sync.
type InvoiceDetail struct {
	resource[*models.Invoice]

	client   client.Client
	validate *validation.Validator
	log      logging.Logger

	number string
}

func NewInvoiceDetail(c client.Client, v *validation.Validator, log logging.Logger) *InvoiceDetail {
	d := &InvoiceDetail{
		client:   c,
		validate: v,
		log:      log.With("component", "invoice_detail"),
	}
	d.clone = func(inv *models.Invoice) *models.Invoice {
		if inv == nil {
			return nil
		}
		cp := *inv
		return &cp
	}
	return d
}

// Number returns the bound invoice number, or "".
func (d *InvoiceDetail) Number() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.number
}

// Load binds invoiceNumber and fetches it. An empty number is a no-op.
func (d *InvoiceDetail) Load(ctx context.Context, invoiceNumber string) error {
	if invoiceNumber == "" {
		return nil
	}
	seq, _ := d.beginLoadIf(func() bool {
		d.number = invoiceNumber
		return true
	})
	return d.load(ctx, invoiceNumber, seq)
}

// boundTo reports whether number is still the bound invoice. The returned
// func must run under d.mu.
func (d *InvoiceDetail) boundTo(number string) func() bool {
	return func() bool { return d.number == number }
}

// Reload fetches the bound invoice again. It does nothing if the detail is
// rebound before the request starts.
func (d *InvoiceDetail) Reload(ctx context.Context) error {
	number := d.Number()
	if number == "" {
		return ErrNoInvoiceBound
	}
	seq, ok := d.beginLoadIf(d.boundTo(number))
	if !ok {
		return nil
	}
	return d.load(ctx, number, seq)
}

func (d *InvoiceDetail) load(ctx context.Context, number string, seq uint64) error {
	inv, err := d.client.GetInvoice(ctx, number)
	if err != nil {
		d.log.Warn(ctx, "fetching invoice failed", "invoice_number", number, "kind", client.KindOf(err).String(), "error", err)
		d.finishLoad(seq, func(s *State[*models.Invoice]) {
			s.Data = nil
			s.Error = MsgFetchInvoice
		})
		return fmt.Errorf("get invoice %q: %w", number, err)
	}

	d.finishLoad(seq, func(s *State[*models.Invoice]) {
		s.Data = inv
		s.Error = ""
	})
	return nil
}

// Save updates the bound invoice and reloads it unless the detail was bound
// to another invoice while the update was in flight. As with Create, a
// failed reload shows up in State.Error only.
func (d *InvoiceDetail) Save(ctx context.Context, data models.UpdateInvoiceData) error {
	number := d.Number()
	if number == "" {
		return ErrNoInvoiceBound
	}
	if err := d.validate.Validate(data); err != nil {
		d.setError(resourceMessage(err, MsgUpdateInvoice))
		return asClientError(err)
	}

	d.beginMutation()
	if _, err := d.client.UpdateInvoice(ctx, number, data); err != nil {
		d.log.Warn(ctx, "updating invoice failed", "invoice_number", number, "kind", client.KindOf(err).String(), "error", err)
		d.endMutation(resourceMessage(err, MsgUpdateInvoice))
		return fmt.Errorf("update invoice %q: %w", number, err)
	}
	d.log.Info(ctx, "invoice updated", "invoice_number", number)

	// A Load for another invoice may have rebound the detail meanwhile; its
	// result stands.
	seq, ok := d.beginLoadIf(d.boundTo(number))
	d.endMutation("")
	if ok {
		_ = d.load(ctx, number, seq)
	}
	return nil
}

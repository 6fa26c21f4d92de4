package models

import "time"

// InvoiceStatus is computed by the server; the client only displays it.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "Pending"
	InvoiceStatusPaid    InvoiceStatus = "Paid"
	InvoiceStatusOverdue InvoiceStatus = "Overdue"
)

// Invoice is the managed resource. InvoiceNumber is the business key used by
// detail, edit and delete; ID is server-internal.
type Invoice struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoiceNumber"`
	Description   string        `json:"description"`
	Amount        Amount        `json:"amount"`
	DueDate       Date          `json:"dueDate"`
	Status        InvoiceStatus `json:"status"`
	CreatedAt     Timestamp     `json:"createdAt"`
	UserID        string        `json:"userId"`
}

// IsOverdue reports whether a pending invoice's due date (midnight UTC)
// lies before now.
func (i Invoice) IsOverdue(now time.Time) bool {
	if i.Status != InvoiceStatusPending || i.DueDate.IsZero() {
		return false
	}
	return i.DueDate.Before(now)
}

// CreateInvoiceData is sent on POST /invoices. The server assigns id,
// status, createdAt and userId.
type CreateInvoiceData struct {
	InvoiceNumber string `json:"invoiceNumber" validate:"required,invoice_number"`
	Description   string `json:"description" validate:"required"`
	Amount        Amount `json:"amount" validate:"positive_amount"`
	DueDate       Date   `json:"dueDate" validate:"required"`
}

// UpdateInvoiceData is sent on PUT /invoices/{invoiceNumber}. The invoice
// number itself is immutable; Status is only honored if the server permits it.
type UpdateInvoiceData struct {
	Description string        `json:"description" validate:"required"`
	Amount      Amount        `json:"amount" validate:"positive_amount"`
	DueDate     Date          `json:"dueDate" validate:"required"`
	Status      InvoiceStatus `json:"status,omitempty" validate:"omitempty,oneof=Pending Paid Overdue"`
}

// UpdateFrom prefills an update payload with the current invoice values.
func UpdateFrom(i Invoice) UpdateInvoiceData {
	return UpdateInvoiceData{
		Description: i.Description,
		Amount:      i.Amount,
		DueDate:     i.DueDate,
	}
}

package services

import (
	"errors"
	"strings"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/validation"
)

var (
	ErrNotConfirmed     = errors.New("deletion not confirmed")
	ErrNoInvoiceBound   = errors.New("no invoice selected")
	ErrInvalidResetLink = errors.New("invalid password reset link")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// User-facing messages.
const (
	MsgNetwork          = "Could not reach the server. Please try again."
	MsgUnexpected       = "An unexpected error occurred."
	MsgLoginFailed      = "Login failed."
	MsgRegisterFailed   = "Registration failed."
	MsgForgotFailed     = "Request failed."
	MsgResetFailed      = "Password reset failed."
	MsgRegistered       = "Registration successful! Please log in."
	MsgResetLinkSent    = "If an account with that email exists, a password reset link has been sent."
	MsgPasswordReset    = "Your password has been reset successfully! Please log in."
	MsgInvalidResetLink = "Invalid password reset link."
	MsgPasswordMismatch = "Passwords do not match!"
	MsgFetchInvoices    = "Failed to fetch invoices."
	MsgFetchInvoice     = "Failed to fetch invoice details."
	MsgCreateInvoice    = "Failed to create the invoice. Please try again."
	MsgUpdateInvoice    = "Failed to update invoice."
	MsgDeleteInvoice    = "Failed to delete the invoice."
	MsgInvoiceNotFound  = "Invoice not found."
)

// authMessage picks the display string for a failed auth operation.
// With aggregate set, field errors take precedence over the server message.
func authMessage(err error, fallback string, aggregate bool) string {
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		return strings.Join(ve.Messages, " ")
	}
	var ce *client.Error
	if !errors.As(err, &ce) {
		return MsgUnexpected
	}
	if !ce.HasResponse() && ce.Kind == client.KindNetwork {
		return MsgNetwork
	}
	if aggregate {
		return ce.Display(fallback)
	}
	if ce.Message != "" {
		return ce.Message
	}
	return fallback
}

// resourceMessage picks the display string for a failed invoice mutation.
// Without a server response the generic fallback is used.
func resourceMessage(err error, fallback string) string {
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		return strings.Join(ve.Messages, " ")
	}
	var ce *client.Error
	if errors.As(err, &ce) && ce.HasResponse() {
		return ce.Display(fallback)
	}
	return fallback
}

// asClientError turns a local validation failure into the client taxonomy.
func asClientError(err error) error {
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		return ve.ClientError()
	}
	return err
}

package client

import (
	"context"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
)

// Client is the remote invoice API.
type Client interface {
	Login(ctx context.Context, data models.LoginData) (*models.AuthResponse, error)
	Register(ctx context.Context, data models.RegisterData) (*models.User, error)
	Me(ctx context.Context, token string) (*models.User, error)
	ForgotPassword(ctx context.Context, data models.ForgotPasswordData) error
	ResetPassword(ctx context.Context, data models.ResetPasswordData) error

	ListInvoices(ctx context.Context) ([]models.Invoice, error)
	GetInvoice(ctx context.Context, invoiceNumber string) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, data models.CreateInvoiceData) (*models.Invoice, error)
	UpdateInvoice(ctx context.Context, invoiceNumber string, data models.UpdateInvoiceData) (*models.Invoice, error)
	DeleteInvoice(ctx context.Context, invoiceNumber string) error

	Close() error
}

// TokenSource yields the bearer token for outgoing requests. An empty token
// means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken always yields the same token.
func StaticToken(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) { return token, nil })
}

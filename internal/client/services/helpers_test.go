package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/client/apitest"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/validation"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "user@x.com"
	testPassword = "correct-horse"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recorder captures navigation and notifications.
type recorder struct {
	mu       sync.Mutex
	routes   []Route
	messages []string
}

func (r *recorder) Navigate(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func (r *recorder) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) Routes() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Route(nil), r.routes...)
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func (r *recorder) Last() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return ""
	}
	return r.routes[len(r.routes)-1]
}

// env wires a session manager and synchronizers against the fake backend.
type env struct {
	srv     *apitest.Server
	store   *TokenStore
	api     *client.HTTPClient
	rec     *recorder
	session *SessionManager
	user    models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := apitest.New(t)
	user := srv.AddUser(models.User{FirstName: "Ada", LastName: "Lovelace", Email: testEmail, TalentName: "Acme"}, testPassword)

	store := NewTokenStore(setupDB(t))
	api, err := client.NewHTTPClient(srv.URL, client.WithTokenSource(store), client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })

	rec := &recorder{}
	sm := NewSessionManager(api, store, rec, rec, validation.New(), logging.Discard())
	t.Cleanup(sm.Close)

	return &env{srv: srv, store: store, api: api, rec: rec, session: sm, user: user}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.session.Login(context.Background(), models.LoginData{Email: testEmail, Password: testPassword}))
	require.Eventually(t, func() bool { return e.session.Snapshot().User != nil }, 2*time.Second, 10*time.Millisecond)
}

func (e *env) invoiceList() *InvoiceList {
	l := NewInvoiceList(e.api, validation.New(), logging.Discard())
	return l
}

func (e *env) invoiceDetail() *InvoiceDetail {
	return NewInvoiceDetail(e.api, validation.New(), logging.Discard())
}

// fakeClient implements client.Client with overridable behavior.
type fakeClient struct {
	mu sync.Mutex

	LoginFn  func(ctx context.Context, data models.LoginData) (*models.AuthResponse, error)
	MeFn     func(ctx context.Context, token string) (*models.User, error)
	ListFn   func(ctx context.Context) ([]models.Invoice, error)
	GetFn    func(ctx context.Context, number string) (*models.Invoice, error)
	UpdateFn func(ctx context.Context, number string, data models.UpdateInvoiceData) (*models.Invoice, error)
	DeleteFn func(ctx context.Context, number string) error

	calls map[string]int
}

func (f *fakeClient) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeClient) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) Login(ctx context.Context, data models.LoginData) (*models.AuthResponse, error) {
	f.hit("Login")
	return f.LoginFn(ctx, data)
}

func (f *fakeClient) Register(context.Context, models.RegisterData) (*models.User, error) {
	f.hit("Register")
	return &models.User{}, nil
}

func (f *fakeClient) Me(ctx context.Context, token string) (*models.User, error) {
	f.hit("Me")
	if f.MeFn == nil {
		return &models.User{ID: "u-1", Email: testEmail}, nil
	}
	return f.MeFn(ctx, token)
}

func (f *fakeClient) ForgotPassword(context.Context, models.ForgotPasswordData) error {
	f.hit("ForgotPassword")
	return nil
}

func (f *fakeClient) ResetPassword(context.Context, models.ResetPasswordData) error {
	f.hit("ResetPassword")
	return nil
}

func (f *fakeClient) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	f.hit("ListInvoices")
	return f.ListFn(ctx)
}

func (f *fakeClient) GetInvoice(ctx context.Context, number string) (*models.Invoice, error) {
	f.hit("GetInvoice")
	return f.GetFn(ctx, number)
}

func (f *fakeClient) CreateInvoice(context.Context, models.CreateInvoiceData) (*models.Invoice, error) {
	f.hit("CreateInvoice")
	return &models.Invoice{}, nil
}

func (f *fakeClient) UpdateInvoice(ctx context.Context, number string, data models.UpdateInvoiceData) (*models.Invoice, error) {
	f.hit("UpdateInvoice")
	if f.UpdateFn == nil {
		return &models.Invoice{}, nil
	}
	return f.UpdateFn(ctx, number, data)
}

func (f *fakeClient) DeleteInvoice(ctx context.Context, number string) error {
	f.hit("DeleteInvoice")
	if f.DeleteFn == nil {
		return nil
	}
	return f.DeleteFn(ctx, number)
}

func (f *fakeClient) Close() error { return nil }

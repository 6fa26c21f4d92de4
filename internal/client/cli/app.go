package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/config"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/services"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/validation"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
)

// App is the interactive client. It is the Navigator and Notifier of its
// session manager: redirects update the current screen and notices are
// printed as they arrive.
type App struct {
	config   *config.Config
	session  *services.SessionManager
	invoices *services.InvoiceList
	detail   *services.InvoiceDetail
	log      logging.Logger

	reader *bufio.Reader
	out    *printer

	mu         sync.Mutex
	route      services.Route
	signedIn   bool
	loggingOut bool
	unwatch    func()
}

// NewApp wires the session manager and the invoice synchronizers around api.
// tokens must be the store api reads its bearer token from.
func NewApp(cfg *config.Config, api client.Client, tokens *services.TokenStore, log logging.Logger, in io.Reader, out, errOut io.Writer) *App {
	v := validation.New()
	a := &App{
		config:   cfg,
		invoices: services.NewInvoiceList(api, v, log),
		detail:   services.NewInvoiceDetail(api, v, log),
		log:      log.With("component", "cli"),
		reader:   bufio.NewReader(in),
		out:      newPrinter(out, errOut, colorsEnabled()),
		route:    services.RouteLogin,
	}
	a.session = services.NewSessionManager(api, tokens, a, a, v, log)
	a.unwatch = a.session.Subscribe(a.onSession)
	return a
}

// onSession warns when a session ends without the user logging out, which
// happens on expiry or when the server rejects the stored token.
func (a *App) onSession(s services.Session) {
	a.mu.Lock()
	ended := a.signedIn && !s.IsAuthenticated() && !a.loggingOut
	a.signedIn = s.IsAuthenticated()
	a.mu.Unlock()

	if ended {
		a.out.Warn("Your session has expired. Please log in again.")
	}
}

// Navigate records the screen the session manager sent the user to.
func (a *App) Navigate(route services.Route) {
	a.mu.Lock()
	prev := a.route
	a.route = route
	a.mu.Unlock()

	if prev != route {
		a.log.Debug(context.Background(), "navigate", "from", string(prev), "to", string(route))
	}
}

func (a *App) Notify(message string) {
	a.out.Success("%s", message)
}

func (a *App) currentRoute() services.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

func (a *App) isLoggedIn() bool {
	return a.session.IsAuthenticated()
}

// requireAuth sends anonymous users to the login screen.
func (a *App) requireAuth() bool {
	if a.isLoggedIn() {
		return true
	}
	a.Navigate(services.RouteLogin)
	a.out.Warn("Please log in first.")
	return false
}

func (a *App) getStatus() string {
	s := a.session.Snapshot()
	who := "anonymous"
	if s.IsAuthenticated() {
		who = "signed in"
		if s.User != nil {
			who = s.User.Email
		}
	}
	return fmt.Sprintf("(%s %s)", who, a.currentRoute())
}

// Run restores the persisted session and serves the REPL until the user
// exits or input ends. The session watcher runs alongside and stops with it.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.session.Init(ctx); err != nil {
		return err
	}
	if a.isLoggedIn() {
		a.Navigate(services.RouteDashboard)
	}

	a.out.Info("Welcome to invoicekeeper (type 'help' for commands)")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.watchSession(gctx, a.config.SessionCheckInterval)
	})
	g.Go(func() error {
		defer cancel()
		runREPL(gctx, a, a.getStatus, a.reader)
		return nil
	})
	return g.Wait()
}

func (a *App) close() {
	a.unwatch()
	a.invoices.Close()
	a.detail.Close()
	a.session.Close()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/validation"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// Route names a screen of the consumer.
type Route string

const (
	RouteLogin          Route = "/login"
	RouteRegister       Route = "/register"
	RouteForgotPassword Route = "/forgot-password"
	RouteResetPassword  Route = "/reset-password"
	RouteDashboard      Route = "/dashboard"
	RouteInvoices       Route = "/invoices"
)

// Navigator receives redirects requested by the session manager.
type Navigator interface {
	Navigate(route Route)
}

// Notifier shows one-off confirmation messages.
type Notifier interface {
	Notify(message string)
}

type NavigatorFunc func(Route)

func (f NavigatorFunc) Navigate(r Route) { f(r) }

type NotifierFunc func(string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticating
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Session is a snapshot of the authentication state. Token is non-empty
// exactly when the user is signed in; User may lag behind while the
// session refresh is in flight.
type Session struct {
	Token     string
	User      *models.User
	Status    Status
	Loading   bool
	Error     string
	ExpiresAt time.Time
}

func (s Session) IsAuthenticated() bool { return s.Token != "" }

// SessionManager owns the session. It is the only writer of the token store.
type SessionManager struct {
	client   client.Client
	tokens   *TokenStore
	nav      Navigator
	notifier Notifier
	validate *validation.Validator
	log      logging.Logger
	now      func() time.Time

	// authMu orders token-store writes with the matching state transition.
	authMu sync.Mutex

	mu            sync.Mutex
	state         Session
	inflight      int
	authInflight  int
	cancelRefresh context.CancelFunc
	obs           observers[Session]

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func NewSessionManager(c client.Client, tokens *TokenStore, nav Navigator, notifier Notifier, v *validation.Validator, log logging.Logger) *SessionManager {
	ctx, stop := context.WithCancel(context.Background())
	return &SessionManager{
		client:   c,
		tokens:   tokens,
		nav:      nav,
		notifier: notifier,
		validate: v,
		log:      log.With("component", "session"),
		now:      time.Now,
		baseCtx:  ctx,
		stop:     stop,
	}
}

// Init restores a persisted session. A token whose known expiry has passed
// is discarded without contacting the server; any other token is accepted
// and verified by a background refresh.
func (m *SessionManager) Init(ctx context.Context) error {
	token, exp, err := m.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if token == "" {
		return nil
	}
	if !exp.IsZero() && !m.now().Before(exp) {
		m.log.Info(ctx, "stored session expired", "expired_at", exp)
		if err := m.tokens.Clear(ctx); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		return nil
	}

	m.update(func(s *Session) {
		s.Token = token
		s.ExpiresAt = exp
		s.Status = StatusAuthenticated
	})
	m.startRefresh(token)
	return nil
}

// Close stops background refreshes, waits for them and detaches observers.
func (m *SessionManager) Close() {
	m.stop()
	m.wg.Wait()
	m.obs.clear()
}

func (m *SessionManager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn for every session change. fn runs without the
// manager's lock held. The returned func detaches it.
func (m *SessionManager) Subscribe(fn func(Session)) (cancel func()) {
	return m.obs.add(fn)
}

// Token implements client.TokenSource from the in-memory session.
func (m *SessionManager) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Token, nil
}

func (m *SessionManager) IsAuthenticated() bool {
	return m.Snapshot().IsAuthenticated()
}

func (m *SessionManager) Login(ctx context.Context, data models.LoginData) error {
	if err := m.validate.Validate(data); err != nil {
		m.update(func(s *Session) { s.Error = authMessage(err, MsgLoginFailed, true) })
		return asClientError(err)
	}

	defer m.beginRequest(true)()

	resp, err := m.client.Login(ctx, data)
	if err != nil {
		m.log.Warn(ctx, "login failed", "kind", client.KindOf(err).String(), "error", err)
		m.update(func(s *Session) { s.Error = authMessage(err, MsgLoginFailed, false) })
		return err
	}

	exp := resp.Expires.Time
	if exp.IsZero() {
		exp = tokenExpiry(resp.Token)
	}
	user := resp.User

	m.authMu.Lock()
	if err := m.tokens.Save(ctx, resp.Token, exp); err != nil {
		m.authMu.Unlock()
		m.log.Error(ctx, "persisting token failed", "error", err)
		m.update(func(s *Session) { s.Error = MsgUnexpected })
		return err
	}
	m.update(func(s *Session) {
		s.Token = resp.Token
		s.User = &user
		s.ExpiresAt = exp
		s.Status = StatusAuthenticated
	})
	m.authMu.Unlock()

	m.log.Info(ctx, "logged in", "user_id", user.ID)
	m.startRefresh(resp.Token)
	m.nav.Navigate(RouteDashboard)
	return nil
}

// Register creates an account. The session is Authenticating while the
// request runs and falls back afterwards; registering never signs in. On
// success the user is sent to the login screen.
func (m *SessionManager) Register(ctx context.Context, data models.RegisterData) error {
	if err := m.validate.Validate(data); err != nil {
		m.update(func(s *Session) { s.Error = authMessage(err, MsgRegisterFailed, true) })
		return asClientError(err)
	}

	defer m.beginRequest(true)()

	if _, err := m.client.Register(ctx, data); err != nil {
		m.log.Warn(ctx, "registration failed", "kind", client.KindOf(err).String(), "error", err)
		m.update(func(s *Session) { s.Error = authMessage(err, MsgRegisterFailed, true) })
		return err
	}

	m.notifier.Notify(MsgRegistered)
	m.nav.Navigate(RouteLogin)
	return nil
}

func (m *SessionManager) ForgotPassword(ctx context.Context, email string) error {
	data := models.ForgotPasswordData{Email: strings.TrimSpace(email)}
	if err := m.validate.Validate(data); err != nil {
		m.update(func(s *Session) { s.Error = authMessage(err, MsgForgotFailed, true) })
		return asClientError(err)
	}

	defer m.beginRequest(false)()

	if err := m.client.ForgotPassword(ctx, data); err != nil {
		m.log.Warn(ctx, "forgot password failed", "kind", client.KindOf(err).String(), "error", err)
		m.update(func(s *Session) { s.Error = authMessage(err, MsgForgotFailed, false) })
		return err
	}

	m.notifier.Notify(MsgResetLinkSent)
	m.nav.Navigate(RouteLogin)
	return nil
}

func (m *SessionManager) ResetPassword(ctx context.Context, data models.ResetPasswordData) error {
	if data.Token == "" || data.Email == "" {
		m.update(func(s *Session) { s.Error = MsgInvalidResetLink })
		return ErrInvalidResetLink
	}
	if data.NewPassword != data.ConfirmPassword {
		m.update(func(s *Session) { s.Error = MsgPasswordMismatch })
		return ErrPasswordMismatch
	}
	if err := m.validate.Validate(data); err != nil {
		m.update(func(s *Session) { s.Error = authMessage(err, MsgResetFailed, true) })
		return asClientError(err)
	}

	defer m.beginRequest(false)()

	if err := m.client.ResetPassword(ctx, data); err != nil {
		m.log.Warn(ctx, "password reset failed", "kind", client.KindOf(err).String(), "error", err)
		m.update(func(s *Session) { s.Error = authMessage(err, MsgResetFailed, true) })
		return err
	}

	m.notifier.Notify(MsgPasswordReset)
	m.nav.Navigate(RouteLogin)
	return nil
}

// ParseResetLink extracts the email and token query parameters of an
// inbound reset link. A bare query string is accepted too.
func ParseResetLink(raw string) (email, token string, err error) {
	raw = strings.TrimSpace(raw)

	var q url.Values
	if !strings.Contains(raw, "?") && strings.Contains(raw, "=") {
		q, err = url.ParseQuery(raw)
	} else {
		var u *url.URL
		if u, err = url.Parse(raw); err == nil {
			q = u.Query()
		}
	}
	if err != nil {
		return "", "", ErrInvalidResetLink
	}

	email, token = q.Get("email"), q.Get("token")
	if email == "" || token == "" {
		return "", "", ErrInvalidResetLink
	}
	return email, token, nil
}

// OpenResetLink prepares a reset form from an inbound link. An invalid link
// is reported and the user is sent to the login screen.
func (m *SessionManager) OpenResetLink(raw string) (models.ResetPasswordData, error) {
	email, token, err := ParseResetLink(raw)
	if err != nil {
		m.notifier.Notify(MsgInvalidResetLink)
		m.nav.Navigate(RouteLogin)
		return models.ResetPasswordData{}, err
	}
	m.nav.Navigate(RouteResetPassword)
	return models.ResetPasswordData{Email: email, Token: token}, nil
}

// Logout ends the session unconditionally and sends the user to login.
// The returned error only reports a failure to clear the stored token.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.authMu.Lock()
	err := m.clearLocked(ctx)
	m.authMu.Unlock()

	m.nav.Navigate(RouteLogin)
	return err
}

// CheckExpiry logs out when the session's known expiry is not after now.
// It reports whether a logout happened.
func (m *SessionManager) CheckExpiry(ctx context.Context, now time.Time) bool {
	snap := m.Snapshot()
	if snap.Token == "" || snap.ExpiresAt.IsZero() || now.Before(snap.ExpiresAt) {
		return false
	}
	m.log.Info(ctx, "session expired", "expired_at", snap.ExpiresAt)
	return m.logoutIf(ctx, snap.Token)
}

// logoutIf logs out only while token is still the current one.
func (m *SessionManager) logoutIf(ctx context.Context, token string) bool {
	m.authMu.Lock()
	if m.Snapshot().Token != token {
		m.authMu.Unlock()
		return false
	}
	if err := m.clearLocked(ctx); err != nil {
		m.log.Error(ctx, "clearing stored token failed", "error", err)
	}
	m.authMu.Unlock()

	m.nav.Navigate(RouteLogin)
	return true
}

// clearLocked resets the session. Callers hold authMu.
func (m *SessionManager) clearLocked(ctx context.Context) error {
	m.mu.Lock()
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
	m.mu.Unlock()

	err := m.tokens.Clear(ctx)
	m.update(func(s *Session) {
		s.Token = ""
		s.User = nil
		s.ExpiresAt = time.Time{}
		s.Status = StatusAnonymous
	})
	return err
}

// startRefresh fetches the user behind token in the background, replacing
// any refresh still running for an older token.
func (m *SessionManager) startRefresh(token string) {
	m.mu.Lock()
	if m.baseCtx.Err() != nil {
		m.mu.Unlock()
		return
	}
	if m.cancelRefresh != nil {
		m.cancelRefresh()
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.cancelRefresh = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.refresh(ctx, token)
	}()
}

func (m *SessionManager) refresh(ctx context.Context, token string) {
	user, err := m.client.Me(ctx, token)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		m.log.Warn(ctx, "session refresh failed, logging out", "kind", client.KindOf(err).String(), "error", err)
		m.logoutIf(context.WithoutCancel(ctx), token)
		return
	}

	m.update(func(s *Session) {
		if s.Token == token {
			s.User = user
		}
	})
}

// beginRequest marks an auth request in flight and returns the func that
// ends it. Loading stays true until every request has ended. An
// authenticating request moves the session to Authenticating; once the last
// one ends the status again follows the token.
func (m *SessionManager) beginRequest(authenticating bool) (end func()) {
	m.update(func(s *Session) {
		m.inflight++
		s.Loading = true
		s.Error = ""
		if authenticating {
			m.authInflight++
			s.Status = StatusAuthenticating
		}
	})

	return func() {
		m.update(func(s *Session) {
			m.inflight--
			s.Loading = m.inflight > 0
			if !authenticating {
				return
			}
			m.authInflight--
			if m.authInflight == 0 && s.Status == StatusAuthenticating {
				s.Status = StatusAnonymous
				if s.Token != "" {
					s.Status = StatusAuthenticated
				}
			}
		})
	}
}

func (m *SessionManager) snapshotLocked() Session {
	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (m *SessionManager) update(fn func(s *Session)) {
	m.mu.Lock()
	fn(&m.state)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.obs.notify(snap)
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server remains the judge of validity.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

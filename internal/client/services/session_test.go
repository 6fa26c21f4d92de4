package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/client/apitest"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/validation"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_ValidCredentials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []Session
	e.session.Subscribe(func(s Session) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.NoError(t, e.session.Login(ctx, models.LoginData{Email: testEmail, Password: testPassword}))

	snap := e.session.Snapshot()
	require.True(t, snap.IsAuthenticated())
	require.Equal(t, StatusAuthenticated, snap.Status)
	require.False(t, snap.Loading)
	require.Empty(t, snap.Error)
	require.NotNil(t, snap.User)
	require.Equal(t, "Ada", snap.User.FirstName)
	require.False(t, snap.ExpiresAt.IsZero())
	require.Equal(t, RouteDashboard, e.rec.Last())

	tok, _, err := NewTokenStore(e.store.db).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap.Token, tok)

	require.Eventually(t, func() bool { return e.srv.Count(http.MethodGet, "/Auth/me") == 1 }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, StatusAuthenticating, seen[0].Status)
	assert.True(t, seen[0].Loading)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.session.Login(ctx, models.LoginData{Email: testEmail, Password: "wrong"})
	require.ErrorIs(t, err, client.ErrUnauthorized)

	snap := e.session.Snapshot()
	require.Equal(t, "Invalid credentials", snap.Error)
	require.Empty(t, snap.Token)
	require.Equal(t, StatusAnonymous, snap.Status)
	require.False(t, snap.Loading)
	require.Empty(t, e.rec.Routes())

	tok, _, err := NewTokenStore(e.store.db).Load(ctx)
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestLogin_SuccessFalseWithoutMessage(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail(http.MethodPost, "/Auth/login", apitest.Failure{
		Status: http.StatusOK,
		Body:   models.Fail(""),
	})

	err := e.session.Login(context.Background(), models.LoginData{Email: testEmail, Password: testPassword})
	require.Error(t, err)
	require.Equal(t, MsgLoginFailed, e.session.Snapshot().Error)
}

func TestLogin_FailureKeepsExistingSession(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	before := e.session.Snapshot()

	err := e.session.Login(context.Background(), models.LoginData{Email: testEmail, Password: "wrong"})
	require.Error(t, err)

	after := e.session.Snapshot()
	require.Equal(t, before.Token, after.Token)
	require.Equal(t, StatusAuthenticated, after.Status)
	require.Equal(t, "Invalid credentials", after.Error)
}

func TestLogin_NetworkFailure(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	api, err := client.NewHTTPClient(deadURL, client.WithTimeout(time.Second))
	require.NoError(t, err)
	rec := &recorder{}
	sm := NewSessionManager(api, NewTokenStore(setupDB(t)), rec, rec, validation.New(), logging.Discard())
	defer sm.Close()

	err = sm.Login(context.Background(), models.LoginData{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, client.ErrUnavailable)
	require.Equal(t, MsgNetwork, sm.Snapshot().Error)
}

func TestLogin_LocalValidation(t *testing.T) {
	e := newEnv(t)

	err := e.session.Login(context.Background(), models.LoginData{Email: "nope"})
	require.ErrorIs(t, err, client.ErrValidation)
	require.Contains(t, e.session.Snapshot().Error, "Email must be a valid email address.")
	require.Zero(t, e.srv.Count(http.MethodPost, "/Auth/login"))
}

func TestLogin_ExpiryFromTokenClaim(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	fc := &fakeClient{
		LoginFn: func(context.Context, models.LoginData) (*models.AuthResponse, error) {
			return &models.AuthResponse{Token: tok, User: models.User{ID: "u-1"}}, nil
		},
	}
	rec := &recorder{}
	store := NewTokenStore(setupDB(t))
	sm := NewSessionManager(fc, store, rec, rec, validation.New(), logging.Discard())
	defer sm.Close()

	require.NoError(t, sm.Login(context.Background(), models.LoginData{Email: testEmail, Password: "p"}))
	require.True(t, exp.Equal(sm.Snapshot().ExpiresAt))
	require.True(t, exp.Equal(store.ExpiresAt()))
}

func TestTokenExpiry_Unparseable(t *testing.T) {
	require.True(t, tokenExpiry("not-a-jwt").IsZero())
	require.True(t, tokenExpiry("").IsZero())
}

func TestRegister_PasswordMismatch_NoRequest(t *testing.T) {
	e := newEnv(t)

	err := e.session.Register(context.Background(), models.RegisterData{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@x.com",
		Password: "one", ConfirmPassword: "two", CompanyName: "Navy",
	})
	require.ErrorIs(t, err, client.ErrValidation)
	require.Equal(t, MsgPasswordMismatch, e.session.Snapshot().Error)
	require.Zero(t, e.srv.Count(http.MethodPost, "/Auth/register"))
	require.Empty(t, e.rec.Messages())
}

func TestRegister_Success(t *testing.T) {
	e := newEnv(t)

	err := e.session.Register(context.Background(), models.RegisterData{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@x.com",
		Password: "pw", ConfirmPassword: "pw", CompanyName: "Navy",
	})
	require.NoError(t, err)
	require.Equal(t, []string{MsgRegistered}, e.rec.Messages())
	require.Equal(t, RouteLogin, e.rec.Last())
	require.False(t, e.session.IsAuthenticated())
}

func TestRegister_ServerErrorsAggregated(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail(http.MethodPost, "/Auth/register", apitest.Failure{
		Status: http.StatusBadRequest,
		Body:   models.Fail("Validation failed.", "Email is taken.", "Phone is invalid."),
	})

	err := e.session.Register(context.Background(), models.RegisterData{
		FirstName: "G", LastName: "H", Email: "g@x.com",
		Password: "pw", ConfirmPassword: "pw", CompanyName: "N",
	})
	require.ErrorIs(t, err, client.ErrValidation)
	require.Equal(t, "Email is taken. Phone is invalid.", e.session.Snapshot().Error)
	require.False(t, e.session.Snapshot().Loading)
}

func TestForgotPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.session.ForgotPassword(ctx, testEmail))
	require.Equal(t, []string{MsgResetLinkSent}, e.rec.Messages())
	require.Equal(t, RouteLogin, e.rec.Last())
	require.NotEmpty(t, e.srv.ResetToken(testEmail))

	e.srv.Fail(http.MethodPost, "/Auth/forgot-password", apitest.Failure{Status: http.StatusInternalServerError})
	require.Error(t, e.session.ForgotPassword(ctx, testEmail))
	require.Equal(t, MsgForgotFailed, e.session.Snapshot().Error)
}

func TestResetPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.session.ResetPassword(ctx, models.ResetPasswordData{Email: testEmail, NewPassword: "a", ConfirmPassword: "a"})
	require.ErrorIs(t, err, ErrInvalidResetLink)
	require.Equal(t, MsgInvalidResetLink, e.session.Snapshot().Error)

	err = e.session.ResetPassword(ctx, models.ResetPasswordData{Email: testEmail, Token: "t", NewPassword: "a", ConfirmPassword: "b"})
	require.ErrorIs(t, err, ErrPasswordMismatch)
	require.Equal(t, MsgPasswordMismatch, e.session.Snapshot().Error)

	err = e.session.ResetPassword(ctx, models.ResetPasswordData{Email: testEmail, Token: "bogus", NewPassword: "a", ConfirmPassword: "a"})
	require.ErrorIs(t, err, client.ErrValidation)
	require.Equal(t, "Invalid or expired token.", e.session.Snapshot().Error)

	require.NoError(t, e.session.ForgotPassword(ctx, testEmail))
	token := e.srv.ResetToken(testEmail)
	require.NoError(t, e.session.ResetPassword(ctx, models.ResetPasswordData{Email: testEmail, Token: token, NewPassword: "new-pw", ConfirmPassword: "new-pw"}))
	require.Contains(t, e.rec.Messages(), MsgPasswordReset)

	require.NoError(t, e.session.Login(ctx, models.LoginData{Email: testEmail, Password: "new-pw"}))
}

func TestParseResetLink(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		email string
		token string
		err   bool
	}{
		{"full link", "https://app.example.com/reset-password?token=abc&email=a%40b.com", "a@b.com", "abc", false},
		{"bare query", "token=abc&email=a@b.com", "a@b.com", "abc", false},
		{"leading question mark", "?email=a@b.com&token=t%2B1", "a@b.com", "t+1", false},
		{"missing token", "https://x/reset-password?email=a@b.com", "", "", true},
		{"missing email", "https://x/reset-password?token=abc", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, token, err := ParseResetLink(tt.raw)
			if tt.err {
				require.ErrorIs(t, err, ErrInvalidResetLink)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.email, email)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestOpenResetLink(t *testing.T) {
	e := newEnv(t)

	_, err := e.session.OpenResetLink("https://x/reset-password?email=a@b.com")
	require.ErrorIs(t, err, ErrInvalidResetLink)
	require.Equal(t, []string{MsgInvalidResetLink}, e.rec.Messages())
	require.Equal(t, RouteLogin, e.rec.Last())

	data, err := e.session.OpenResetLink("token=t&email=a@b.com")
	require.NoError(t, err)
	require.Equal(t, models.ResetPasswordData{Email: "a@b.com", Token: "t"}, data)
	require.Equal(t, RouteResetPassword, e.rec.Last())
}

func TestInit_StoredTokenRejected_LogsOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Save(ctx, "stale-token", time.Time{}))

	require.NoError(t, e.session.Init(ctx))

	require.Eventually(t, func() bool { return !e.session.IsAuthenticated() }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, StatusAnonymous, e.session.Snapshot().Status)
	require.Equal(t, RouteLogin, e.rec.Last())

	tok, _, err := NewTokenStore(e.store.db).Load(ctx)
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestInit_StoredTokenAccepted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Save(ctx, e.srv.IssueToken(testEmail), time.Now().Add(time.Hour)))

	require.NoError(t, e.session.Init(ctx))
	require.True(t, e.session.IsAuthenticated())

	require.Eventually(t, func() bool { return e.session.Snapshot().User != nil }, 2*time.Second, 10*time.Millisecond)
	snap := e.session.Snapshot()
	require.Equal(t, e.user.ID, snap.User.ID)
	require.Equal(t, "Acme", snap.User.TalentName)
}

func TestInit_BareMePayload(t *testing.T) {
	e := newEnv(t)
	e.srv.ServeMeBare(true)
	ctx := context.Background()
	require.NoError(t, e.store.Save(ctx, e.srv.IssueToken(testEmail), time.Time{}))

	require.NoError(t, e.session.Init(ctx))
	require.Eventually(t, func() bool { return e.session.Snapshot().User != nil }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, testEmail, e.session.Snapshot().User.Email)
}

func TestInit_ExpiredStoredToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Save(ctx, "old", time.Now().Add(-time.Minute)))

	require.NoError(t, e.session.Init(ctx))
	require.False(t, e.session.IsAuthenticated())
	require.Zero(t, e.srv.Count(http.MethodGet, "/Auth/me"))

	tok, _, err := NewTokenStore(e.store.db).Load(ctx)
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestCheckExpiry(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	ctx := context.Background()
	exp := e.session.Snapshot().ExpiresAt

	require.False(t, e.session.CheckExpiry(ctx, exp.Add(-time.Minute)))
	require.True(t, e.session.IsAuthenticated())

	require.True(t, e.session.CheckExpiry(ctx, exp.Add(time.Second)))
	require.False(t, e.session.IsAuthenticated())
	require.Equal(t, RouteLogin, e.rec.Last())

	require.False(t, e.session.CheckExpiry(ctx, exp.Add(time.Hour)))
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	ctx := context.Background()

	require.NoError(t, e.session.Logout(ctx))

	snap := e.session.Snapshot()
	require.Empty(t, snap.Token)
	require.Nil(t, snap.User)
	require.True(t, snap.ExpiresAt.IsZero())
	require.Equal(t, StatusAnonymous, snap.Status)
	require.Equal(t, RouteLogin, e.rec.Last())

	tok, _ := e.store.Token(ctx)
	require.Empty(t, tok)

	_, err := e.api.ListInvoices(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestRefresh_OldTokenFailureDoesNotEndNewSession(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	fc := &fakeClient{
		LoginFn: func(context.Context, models.LoginData) (*models.AuthResponse, error) {
			return &models.AuthResponse{Token: "new", User: models.User{ID: "u-1"}}, nil
		},
		MeFn: func(_ context.Context, token string) (*models.User, error) {
			if token == "old" {
				started <- struct{}{}
				<-release
				return nil, &client.Error{Kind: client.KindAuth, Status: http.StatusUnauthorized}
			}
			return &models.User{ID: "u-1", Email: testEmail}, nil
		},
	}
	rec := &recorder{}
	store := NewTokenStore(setupDB(t))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "old", time.Time{}))

	sm := NewSessionManager(fc, store, rec, rec, validation.New(), logging.Discard())
	defer sm.Close()

	require.NoError(t, sm.Init(ctx))
	<-started

	require.NoError(t, sm.Login(ctx, models.LoginData{Email: testEmail, Password: "p"}))
	close(release)

	require.Eventually(t, func() bool { return fc.Calls("Me") == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	snap := sm.Snapshot()
	require.Equal(t, "new", snap.Token)
	require.Equal(t, StatusAuthenticated, snap.Status)
	require.NotContains(t, rec.Routes(), RouteLogin)
}

func TestRefresh_TransientFailureLogsOut(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail(http.MethodGet, "/Auth/me", apitest.Failure{Status: http.StatusInternalServerError})

	require.NoError(t, e.session.Login(context.Background(), models.LoginData{Email: testEmail, Password: testPassword}))
	require.Eventually(t, func() bool { return !e.session.IsAuthenticated() }, 2*time.Second, 10*time.Millisecond)
}

func TestClose_StopsPendingRefresh(t *testing.T) {
	blocked := make(chan struct{})
	fc := &fakeClient{
		MeFn: func(ctx context.Context, _ string) (*models.User, error) {
			close(blocked)
			<-ctx.Done()
			return nil, &client.Error{Kind: client.KindNetwork, Err: ctx.Err()}
		},
	}
	rec := &recorder{}
	store := NewTokenStore(setupDB(t))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "tok", time.Time{}))

	sm := NewSessionManager(fc, store, rec, rec, validation.New(), logging.Discard())
	require.NoError(t, sm.Init(ctx))
	<-blocked

	sm.Close()

	// Cancellation is not a session failure.
	require.True(t, sm.IsAuthenticated())
	require.Empty(t, rec.Routes())
	tok, _ := store.Token(ctx)
	require.Equal(t, "tok", tok)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "anonymous", StatusAnonymous.String())
	assert.Equal(t, "authenticating", StatusAuthenticating.String())
	assert.Equal(t, "authenticated", StatusAuthenticated.String())
}

func TestSession_OverlappingRequestsKeepLoading(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	fc := &fakeClient{
		LoginFn: func(context.Context, models.LoginData) (*models.AuthResponse, error) {
			close(started)
			<-release
			return &models.AuthResponse{Token: "tok", User: models.User{ID: "u-1"}}, nil
		},
	}
	sm := NewSessionManager(fc, NewTokenStore(setupDB(t)), &recorder{}, &recorder{}, validation.New(), logging.Discard())
	defer sm.Close()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- sm.Login(ctx, models.LoginData{Email: testEmail, Password: "p"}) }()
	<-started

	require.NoError(t, sm.ForgotPassword(ctx, testEmail))
	snap := sm.Snapshot()
	assert.True(t, snap.Loading)
	assert.Equal(t, StatusAuthenticating, snap.Status)

	close(release)
	require.NoError(t, <-done)

	snap = sm.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, StatusAuthenticated, snap.Status)
}

func TestRegister_StatusTransitions(t *testing.T) {
	e := newEnv(t)

	var mu sync.Mutex
	var statuses []Status
	e.session.Subscribe(func(s Session) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})

	require.NoError(t, e.session.Register(context.Background(), models.RegisterData{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@x.com",
		Password: "pw", ConfirmPassword: "pw", CompanyName: "Navy",
	}))
	require.Equal(t, StatusAnonymous, e.session.Snapshot().Status)

	e.srv.Fail(http.MethodPost, "/Auth/register", apitest.Failure{Status: http.StatusInternalServerError})
	require.Error(t, e.session.Register(context.Background(), models.RegisterData{
		FirstName: "Alan", LastName: "Turing", Email: "alan@x.com",
		Password: "pw", ConfirmPassword: "pw", CompanyName: "NPL",
	}))
	snap := e.session.Snapshot()
	require.Equal(t, StatusAnonymous, snap.Status)
	require.False(t, snap.Loading)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{
		StatusAuthenticating, StatusAnonymous,
		StatusAuthenticating, StatusAuthenticating, StatusAnonymous,
	}, statuses)
}

// Package apitest runs an in-process invoice API for tests. It keeps users
// and invoices in memory, mints real HS256 tokens, and lets a test inject
// failures or block individual requests.
package apitest

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Request is what the server saw of one call.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          string
}

// Failure is a canned response served instead of the real handler.
type Failure struct {
	Status int
	Body   any
	// Times limits how many requests are failed; 0 means until cleared.
	Times int
}

type account struct {
	user     models.User
	password string
}

type Server struct {
	URL      string
	TokenTTL time.Duration

	srv    *httptest.Server
	secret []byte

	mu          sync.Mutex
	accounts    map[string]*account // by email
	invoices    map[string][]models.Invoice
	resetTokens map[string]string
	failures    map[string]*Failure
	gates       map[string]chan struct{}
	requests    []Request
	meBare      bool
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// New starts a server that is shut down when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		TokenTTL:    time.Hour,
		secret:      []byte("apitest-secret"),
		accounts:    map[string]*account{},
		invoices:    map[string][]models.Invoice{},
		resetTokens: map[string]string{},
		failures:    map[string]*Failure{},
		gates:       map[string]chan struct{}{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.record, s.inject)

	e.POST("/Auth/login", s.login)
	e.POST("/Auth/register", s.register)
	e.GET("/Auth/me", s.me)
	e.POST("/Auth/forgot-password", s.forgotPassword)
	e.POST("/Auth/reset-password", s.resetPassword)

	g := e.Group("/invoices", s.authenticate)
	g.GET("", s.listInvoices)
	g.POST("", s.createInvoice)
	g.GET("/:number", s.getInvoice)
	g.PUT("/:number", s.updateInvoice)
	g.DELETE("/:number", s.deleteInvoice)

	s.srv = httptest.NewServer(e)
	s.URL = s.srv.URL
	t.Cleanup(s.Close)

	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	for k, ch := range s.gates {
		close(ch)
		delete(s.gates, k)
	}
	s.mu.Unlock()
	s.srv.Close()
}

// AddUser registers an account directly and returns it with its id filled.
func (s *Server) AddUser(u models.User, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.accounts[strings.ToLower(u.Email)] = &account{user: u, password: password}
	return u
}

// IssueToken mints a token for a registered email, valid for TokenTTL.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[strings.ToLower(email)]
	if acc == nil {
		return ""
	}
	tok, _ := s.mint(acc.user, time.Now().Add(s.TokenTTL))
	return tok
}

// MintToken signs a token for userID expiring at exp.
func (s *Server) MintToken(userID, email string, exp time.Time) string {
	tok, _ := s.mint(models.User{ID: userID, Email: email}, exp)
	return tok
}

// Seed stores invoices for the user with the given email.
func (s *Server) Seed(email string, invoices ...models.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[strings.ToLower(email)]
	if acc == nil {
		return
	}
	for _, inv := range invoices {
		if inv.ID == "" {
			inv.ID = uuid.NewString()
		}
		if inv.Status == "" {
			inv.Status = models.InvoiceStatusPending
		}
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = models.Timestamp{Time: time.Now().UTC()}
		}
		inv.UserID = acc.user.ID
		s.invoices[acc.user.ID] = append(s.invoices[acc.user.ID], inv)
	}
}

// Invoices returns the stored invoices of a user.
func (s *Server) Invoices(email string) []models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[strings.ToLower(email)]
	if acc == nil {
		return nil
	}
	return append([]models.Invoice(nil), s.invoices[acc.user.ID]...)
}

// ResetToken returns the token issued by the last forgot-password call.
func (s *Server) ResetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetTokens[strings.ToLower(email)]
}

// ServeMeBare makes /Auth/me answer without the envelope.
func (s *Server) ServeMeBare(bare bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meBare = bare
}

// Fail serves f for requests matching method and path (e.g. "GET /invoices").
func (s *Server) Fail(method, path string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &f
}

func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]*Failure{}
}

// Hold blocks the next requests matching method and path until the returned
// release func is called.
func (s *Server) Hold(method, path string) (release func()) {
	ch := make(chan struct{})
	key := method + " " + path
	s.mu.Lock()
	if prev := s.gates[key]; prev != nil {
		close(prev)
	}
	s.gates[key] = ch
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gates[key] == ch {
			delete(s.gates, key)
			close(ch)
		}
	}
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		var body []byte
		if r.Body != nil {
			var err error
			if body, err = io.ReadAll(r.Body); err != nil {
				return err
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get(common.AuthorizationHeaderName),
			RequestID:     r.Header.Get(common.RequestIDHeaderName),
			Body:          string(body),
		})
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Server) inject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Method + " " + c.Request().URL.Path

		s.mu.Lock()
		gate := s.gates[key]
		s.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-c.Request().Context().Done():
				return c.Request().Context().Err()
			}
		}

		s.mu.Lock()
		f := s.failures[key]
		if f != nil && f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				delete(s.failures, key)
			}
		}
		s.mu.Unlock()

		if f != nil {
			if f.Body == nil {
				return c.NoContent(f.Status)
			}
			return c.JSON(f.Status, f.Body)
		}
		return next(c)
	}
}

func (s *Server) mint(u models.User, exp time.Time) (string, error) {
	c := claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// userFor resolves the bearer token of the request to an account.
func (s *Server) userFor(c echo.Context) (*account, error) {
	h := c.Request().Header.Get(common.AuthorizationHeaderName)
	raw, ok := strings.CutPrefix(h, common.BearerPrefix)
	if !ok || raw == "" {
		return nil, common.ErrInvalidToken
	}

	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, common.ErrTokenExpired
	}
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[strings.ToLower(cl.Email)]
	if acc == nil || acc.user.ID != cl.Subject {
		return nil, common.ErrInvalidToken
	}
	return acc, nil
}

func unauthorized(c echo.Context, err error) error {
	msg := "Unauthorized"
	if errors.Is(err, common.ErrTokenExpired) {
		msg = "Token expired."
	}
	return c.JSON(http.StatusUnauthorized, models.Fail(msg))
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		acc, err := s.userFor(c)
		if err != nil {
			return unauthorized(c, err)
		}
		c.Set("userID", acc.user.ID)
		return next(c)
	}
}

func (s *Server) login(c echo.Context) error {
	var in models.LoginData
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, models.Fail("Malformed request."))
	}

	s.mu.Lock()
	acc := s.accounts[strings.ToLower(in.Email)]
	s.mu.Unlock()
	if acc == nil || acc.password != in.Password {
		return c.JSON(http.StatusUnauthorized, models.Fail("Invalid credentials"))
	}

	exp := time.Now().Add(s.TokenTTL)
	tok, err := s.mint(acc.user, exp)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Fail("token error"))
	}
	return c.JSON(http.StatusOK, models.Wrap(models.AuthResponse{
		Token:   tok,
		Expires: models.Timestamp{Time: exp.UTC()},
		User:    acc.user,
	}, "Login successful."))
}

func (s *Server) register(c echo.Context) error {
	var in models.RegisterData
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, models.Fail("Malformed request."))
	}
	if in.Password != in.ConfirmPassword {
		return c.JSON(http.StatusBadRequest, models.Fail("Validation failed.", "Passwords do not match."))
	}

	key := strings.ToLower(in.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[key]; exists {
		return c.JSON(http.StatusConflict, models.Fail("Registration failed.", "Email is already registered."))
	}

	u := models.User{
		ID:          uuid.NewString(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Roles:       []string{"User"},
		TalentID:    uuid.NewString(),
		TalentName:  in.CompanyName,
	}
	s.accounts[key] = &account{user: u, password: in.Password}
	return c.JSON(http.StatusOK, models.Wrap(u, "Registration successful."))
}

func (s *Server) me(c echo.Context) error {
	acc, err := s.userFor(c)
	if err != nil {
		return unauthorized(c, err)
	}
	me := models.MeResponse{
		UserID:     acc.user.ID,
		FirstName:  acc.user.FirstName,
		LastName:   acc.user.LastName,
		Email:      acc.user.Email,
		TalentID:   acc.user.TalentID,
		TalentName: acc.user.TalentName,
	}

	s.mu.Lock()
	bare := s.meBare
	s.mu.Unlock()
	if bare {
		return c.JSON(http.StatusOK, me)
	}
	return c.JSON(http.StatusOK, models.Wrap(me, ""))
}

func (s *Server) forgotPassword(c echo.Context) error {
	var in models.ForgotPasswordData
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, models.Fail("Malformed request."))
	}
	key := strings.ToLower(in.Email)
	s.mu.Lock()
	if _, ok := s.accounts[key]; ok {
		s.resetTokens[key] = uuid.NewString()
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, models.Wrap(true, "If the account exists, a reset link was sent."))
}

func (s *Server) resetPassword(c echo.Context) error {
	var in models.ResetPasswordData
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, models.Fail("Malformed request."))
	}
	if in.NewPassword != in.ConfirmPassword {
		return c.JSON(http.StatusBadRequest, models.Fail("Validation failed.", "Passwords do not match."))
	}

	key := strings.ToLower(in.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[key]
	if acc == nil || s.resetTokens[key] == "" || s.resetTokens[key] != in.Token {
		return c.JSON(http.StatusBadRequest, models.Fail("Invalid or expired token."))
	}
	acc.password = in.NewPassword
	delete(s.resetTokens, key)
	return c.JSON(http.StatusOK, models.Wrap(true, "Password has been reset."))
}

func numberParam(c echo.Context) string {
	n := c.Param("number")
	if un, err := url.PathUnescape(n); err == nil {
		return un
	}
	return n
}

func (s *Server) listInvoices(c echo.Context) error {
	uid := c.Get("userID").(string)
	s.mu.Lock()
	out := append([]models.Invoice{}, s.invoices[uid]...)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, models.Wrap(out, ""))
}

func (s *Server) find(uid, number string) int {
	for i, inv := range s.invoices[uid] {
		if inv.InvoiceNumber == number {
			return i
		}
	}
	return -1
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, models.Fail("Invoice not found."))
}

func (s *Server) getInvoice(c echo.Context) error {
	uid := c.Get("userID").(string)
	number := numberParam(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(uid, number)
	if i < 0 {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, models.Wrap(s.invoices[uid][i], ""))
}

func (s *Server) createInvoice(c echo.Context) error {
	uid := c.Get("userID").(string)
	var in models.CreateInvoiceData
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, models.Fail("Malformed request."))
	}
	if strings.TrimSpace(in.InvoiceNumber) == "" {
		return c.JSON(http.StatusBadRequest, models.Fail("Validation failed.", "Invoice number is required."))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(uid, in.InvoiceNumber) >= 0 {
		return c.JSON(http.StatusConflict, models.Fail("Invoice already exists.", "Invoice number already exists."))
	}
	inv := models.Invoice{
		ID:            uuid.NewString(),
		InvoiceNumber: in.InvoiceNumber,
		Description:   in.Description,
		Amount:        in.Amount,
		DueDate:       in.DueDate,
		Status:        models.InvoiceStatusPending,
		CreatedAt:     models.Timestamp{Time: time.Now().UTC()},
		UserID:        uid,
	}
	s.invoices[uid] = append(s.invoices[uid], inv)
	return c.JSON(http.StatusCreated, models.Wrap(inv, "Invoice created."))
}

func (s *Server) updateInvoice(c echo.Context) error {
	uid := c.Get("userID").(string)
	number := numberParam(c)
	var in models.UpdateInvoiceData
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, models.Fail("Malformed request."))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(uid, number)
	if i < 0 {
		return notFound(c)
	}
	inv := &s.invoices[uid][i]
	inv.Description = in.Description
	inv.Amount = in.Amount
	inv.DueDate = in.DueDate
	if in.Status != "" {
		inv.Status = in.Status
	}
	return c.JSON(http.StatusOK, models.Wrap(*inv, "Invoice updated."))
}

func (s *Server) deleteInvoice(c echo.Context) error {
	uid := c.Get("userID").(string)
	number := numberParam(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(uid, number)
	if i < 0 {
		return notFound(c)
	}
	s.invoices[uid] = append(s.invoices[uid][:i], s.invoices[uid][i+1:]...)
	return c.JSON(http.StatusOK, models.Wrap(true, "Invoice deleted."))
}

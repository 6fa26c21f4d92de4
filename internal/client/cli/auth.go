package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/services"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

// prompt reads one answer per label, stopping at the first input error.
func (a *App) prompt(labels ...string) ([]string, error) {
	answers := make([]string, 0, len(labels))
	for _, l := range labels {
		v, err := getSimpleText(a.reader, l, a.out.out)
		if err != nil {
			return nil, err
		}
		answers = append(answers, v)
	}
	return answers, nil
}

// sessionError prints the session's error message, or err when there is none.
func (a *App) sessionError(err error) error {
	if msg := a.session.Snapshot().Error; msg != "" {
		a.out.Error("%s", msg)
	} else {
		a.out.Error("%v", err)
	}
	return err
}

// Register prompts for the account details and creates the account. The
// user still has to log in afterwards.
func (a *App) Register(ctx context.Context) error {
	a.Navigate(services.RouteRegister)

	v, err := a.prompt("First name", "Last name", "Email", "Company name", "Phone number (optional)")
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, "Password", a.out.out)
	if err != nil {
		return err
	}
	confirm, err := getPassword(a.reader, "Confirm password", a.out.out)
	if err != nil {
		return err
	}

	data := models.RegisterData{
		FirstName:       v[0],
		LastName:        v[1],
		Email:           v[2],
		CompanyName:     v[3],
		PhoneNumber:     v[4],
		Password:        password,
		ConfirmPassword: confirm,
	}
	if err := a.session.Register(ctx, data); err != nil {
		return a.sessionError(err)
	}
	return nil
}

// Login prompts for credentials and opens a session. On success the
// dashboard is shown.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		a.out.Info("Already logged in. Use 'logout' first to switch accounts.")
		return nil
	}
	a.Navigate(services.RouteLogin)

	email, err := getSimpleText(a.reader, "Email", a.out.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, "Password", a.out.out)
	if err != nil {
		return err
	}

	if err := a.session.Login(ctx, models.LoginData{Email: email, Password: password}); err != nil {
		return a.sessionError(err)
	}

	name := email
	if u := a.session.Snapshot().User; u != nil {
		name = u.FullName()
	}
	a.out.Success("Welcome, %s!", name)
	return a.Dashboard(ctx)
}

func (a *App) ForgotPassword(ctx context.Context) error {
	a.Navigate(services.RouteForgotPassword)

	email, err := getSimpleText(a.reader, "Email", a.out.out)
	if err != nil {
		return err
	}
	if err := a.session.ForgotPassword(ctx, email); err != nil {
		return a.sessionError(err)
	}
	return nil
}

// ResetPassword opens a reset link and asks for the new password twice.
func (a *App) ResetPassword(ctx context.Context, link string) error {
	data, err := a.session.OpenResetLink(link)
	if err != nil {
		return err
	}

	if data.NewPassword, err = getPassword(a.reader, "New password", a.out.out); err != nil {
		return err
	}
	if data.ConfirmPassword, err = getPassword(a.reader, "Confirm new password", a.out.out); err != nil {
		return err
	}

	if err := a.session.ResetPassword(ctx, data); err != nil {
		return a.sessionError(err)
	}
	return nil
}

// Logout ends the session. A failure to clear the stored token is reported
// but the session is closed regardless.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.loggingOut = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.loggingOut = false
		a.mu.Unlock()
	}()

	if err := a.session.Logout(ctx); err != nil {
		a.out.Warn("Logged out, but the stored session could not be removed: %v", err)
		return err
	}
	a.out.Success("Logged out.")
	return nil
}

func (a *App) WhoAmI(context.Context) error {
	if !a.requireAuth() {
		return errNotLoggedIn
	}
	s := a.session.Snapshot()
	if s.User == nil {
		a.out.Info("Signed in; profile is still loading.")
		return nil
	}

	rows := [][]string{
		{"Name", s.User.FullName()},
		{"Email", s.User.Email},
	}
	if s.User.TalentName != "" {
		rows = append(rows, []string{"Company", s.User.TalentName})
	}
	if !s.ExpiresAt.IsZero() {
		rows = append(rows, []string{"Session expires", s.ExpiresAt.Local().Format("2006-01-02 15:04")})
	}
	return a.out.Table([]string{"Field", "Value"}, rows)
}

var errNotLoggedIn = errors.New("not logged in")

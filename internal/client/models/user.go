package models

// User is the authenticated identity.
type User struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Email       string   `json:"email"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	Roles       []string `json:"roles"`
	TalentID    string   `json:"talentId,omitempty"`
	TalentName  string   `json:"talentName,omitempty"`
}

// FullName returns "First Last", or the email when both names are empty.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}

// MeResponse is the payload of GET /Auth/me. It names the id "userId".
type MeResponse struct {
	UserID     string `json:"userId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	TalentID   string `json:"talentId"`
	TalentName string `json:"talentName"`
}

func (m MeResponse) ToUser() User {
	return User{
		ID:         m.UserID,
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		Email:      m.Email,
		TalentID:   m.TalentID,
		TalentName: m.TalentName,
	}
}

// AuthResponse is the data of a successful POST /Auth/login.
type AuthResponse struct {
	Token   string    `json:"token"`
	Expires Timestamp `json:"expires"`
	User    User      `json:"user"`
}

type LoginData struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterData struct {
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	CompanyName     string `json:"companyName" validate:"required"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
}

type ForgotPasswordData struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordData struct {
	Email           string `json:"email" validate:"required,email"`
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/authinvite/pkg/errors"
)

// SignupErrorCode identifies why an invitation cannot be used for signup.
type SignupErrorCode string

const (
	CodeNoInvite          SignupErrorCode = "NO_INVITE"
	CodeInvalidInvite     SignupErrorCode = "INVALID_INVITE"
	CodeAccountExists     SignupErrorCode = "ACCOUNT_EXISTS"
	CodeProhibitedByEmail SignupErrorCode = "PROHIBITED_BY_EMAIL"
)

var (
	ErrSignupNoInvite = apperrors.New("auth.signuponlywithinvite",
		"Self-registration is only possible with an invitation", http.StatusForbidden)
	ErrSignupInvalidInvite = apperrors.New("auth.invalidinvite",
		"This invitation is expired or has already been used", http.StatusGone)
	ErrSignupAccountExists = apperrors.New("auth.signupaccountexists",
		"There already exists a user account for this invitation or email address", http.StatusConflict)
	ErrSignupProhibitedByEmail = apperrors.New("auth.signupprohibitedbyemail",
		"Self-registration is not allowed for this email address", http.StatusForbidden)
	ErrLoginProhibitedByEmail = apperrors.New("auth.loginprohibitedbyemail",
		"Login is not possible because your email address is listed as prohibited", http.StatusUnauthorized)

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
)

var (
	// ErrInvitationConsumed is returned when another request consumed the invitation first.
	ErrInvitationConsumed = errors.New("invitation: already linked to an account")
	// ErrUsernameExhausted signals that no free generated username was found.
	ErrUsernameExhausted = errors.New("username generator: no free username found")

	// ErrMissingInvitationToken is a caller error: submitted signup data carried no token.
	ErrMissingInvitationToken = errors.New("signup: submitted data has no invitation token")
	// ErrEmailMismatch is a caller error: the submitted email differs from the invitation's.
	ErrEmailMismatch = errors.New("signup: submitted email does not match the invitation")
)

// MessageKey returns the localized string identifier for the code.
func (c SignupErrorCode) MessageKey() string {
	if appErr := c.AppError(); appErr != nil {
		return strings.TrimPrefix(appErr.Code, "auth.")
	}
	return ""
}

// AppError maps the code onto its API error.
func (c SignupErrorCode) AppError() *apperrors.AppError {
	switch c {
	case CodeNoInvite:
		return ErrSignupNoInvite
	case CodeInvalidInvite:
		return ErrSignupInvalidInvite
	case CodeAccountExists:
		return ErrSignupAccountExists
	case CodeProhibitedByEmail:
		return ErrSignupProhibitedByEmail
	default:
		return nil
	}
}

// SignupError is the catchable form of a rejected invitation.
type SignupError struct {
	Code SignupErrorCode
}

func (e *SignupError) Error() string {
	return "invitation: signup rejected: " + string(e.Code)
}

// Unwrap exposes the API error so errors.Is(err, ErrSignupInvalidInvite) holds.
func (e *SignupError) Unwrap() error {
	if appErr := e.Code.AppError(); appErr != nil {
		return appErr
	}
	return nil
}

// ContractViolationError reports signup data that the caller should never have
// submitted. It is not recoverable by the end user.
type ContractViolationError struct {
	Reason error
}

func (e *ContractViolationError) Error() string {
	return "signup: contract violation: " + e.Reason.Error()
}

func (e *ContractViolationError) Unwrap() error {
	return e.Reason
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}

package handlers_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authinvite/internal/handlers/testutil"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/internal/services"
)

type signupPayload map[string]any

func validSignup(token, email string) signupPayload {
	return signupPayload{
		"invitationtoken": token,
		"username":        "newuser",
		"password":        "Secret123!",
		"email":           email,
		"firstname":       "New",
		"lastname":        "User",
		"city":            "Berlin",
		"country":         "de",
	}
}

func TestPreSignup(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/auth/invitation/presignup.php", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page struct {
		Title                  string   `json:"title"`
		Heading                string   `json:"heading"`
		Messages               []string `json:"messages"`
		AllowMismatchingEmails bool     `json:"allow_mismatching_emails"`
		SignupURL              string   `json:"signup_url"`
		LoginURL               string   `json:"login_url"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &page)
	require.Equal(t, "Accept invitation", page.Title)
	require.Equal(t, "Invitation test site", page.Heading)
	require.Len(t, page.Messages, 2)
	require.Contains(t, page.Messages[1], "contact the course organizers")
	require.False(t, page.AllowMismatchingEmails)
	require.Equal(t, "https://www.example.com/moodle/auth/invitation/signup.php", page.SignupURL)
	require.Equal(t, "https://www.example.com/moodle/login/index.php", page.LoginURL)

	env = testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.AllowMismatchingEmails = true
	}))
	w = env.Request(http.MethodGet, "/auth/invitation/presignup.php", nil, "", "Accept-Language", "de-DE,de;q=0.9")
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &page)
	require.True(t, page.AllowMismatchingEmails)
	require.Equal(t, "Einladung annehmen", page.Title)
}

func TestSignupForm(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.ConfirmPasswordOnSignup = true
		cfg.ShowCityFieldOnSignup = false
	}))
	env.CreateInvitation("asdf1234", "test@example.com")

	w := env.Request(http.MethodGet, "/auth/invitation/signup.php?invitationtoken=asdf1234", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var form services.SignupForm
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &form)
	require.Equal(t, "asdf1234", form.InvitationToken)
	require.Equal(t, "test@example.com", form.Email)
	require.True(t, form.UsernameEnabled)
	require.True(t, form.ConfirmPassword)
	require.Len(t, form.Fields, 4)
	require.Equal(t, "city", form.Fields[2].Name)
	require.False(t, form.Fields[2].Enabled)

	// the token may come from the pending enrolment link instead
	wants := url.QueryEscape("https://www.example.com/moodle/enrol/invitation/enrol.php?token=asdf1234")
	w = env.Request(http.MethodGet, "/auth/invitation/signup.php?wantsurl="+wants, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSignupFormRejections(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.ProhibitedEmailPatterns = "*@blocked.example"
	}))
	env.CreateInvitation("blocked1", "someone@blocked.example")
	env.CreateInvitation("taken123", "taken@example.com")
	env.CreateUser("taken", "taken@example.com", "Secret123!")

	cases := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{name: "missing token", query: "", status: http.StatusGone, code: "auth.invalidinvite"},
		{name: "unknown token", query: "?invitationtoken=nope", status: http.StatusGone, code: "auth.invalidinvite"},
		{name: "prohibited email", query: "?invitationtoken=blocked1", status: http.StatusForbidden, code: "auth.signupprohibitedbyemail"},
		{name: "existing account", query: "?invitationtoken=taken123", status: http.StatusConflict, code: "auth.signupaccountexists"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.Request(http.MethodGet, "/auth/invitation/signup.php"+tc.query, nil, "")
			require.Equal(t, tc.status, w.Code, w.Body.String())
			resp := testutil.DecodeResponse(t, w)
			require.False(t, resp.Success)
			require.Equal(t, tc.code, resp.Error.Code)
		})
	}

	w := env.Request(http.MethodGet, "/auth/invitation/signup.php?invitationtoken=nope&lang=de", nil, "")
	resp := testutil.DecodeResponse(t, w)
	require.Contains(t, resp.Error.Message, "Einladung")
}

func TestSignupCreatesAccount(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.SendWelcomeEmail = true
	}))
	inv := env.CreateInvitation("asdf1234", "test@example.com")

	w := env.Request(http.MethodPost, "/auth/invitation/signup.php", validSignup("asdf1234", "Test@Example.com"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)
	want := "https://www.example.com/moodle/auth/invitation/postsignup.php?invitationtoken=asdf1234"
	require.Equal(t, want, resp.Redirect)
	require.Equal(t, want, w.Header().Get("Location"))

	var payload struct {
		User   models.User     `json:"user"`
		Tokens testutil.Tokens `json:"tokens"`
	}
	testutil.DecodeInto(t, resp.Data, &payload)
	require.Equal(t, "newuser", payload.User.Username)
	require.Equal(t, models.AuthInvitation, payload.User.Auth)
	require.True(t, payload.User.Confirmed)
	require.Equal(t, "DE", payload.User.Country)
	require.NotEmpty(t, payload.Tokens.AccessToken)

	var stored models.Invitation
	require.NoError(t, env.DB.First(&stored, inv.ID).Error)
	require.NotNil(t, stored.UserID)
	require.Equal(t, payload.User.ID, *stored.UserID)

	require.Len(t, env.Mailer.Messages(), 1)
	require.Equal(t, []string{"test@example.com"}, env.Mailer.Messages()[0].To)

	// the new session opens the post signup page
	w = env.Request(http.MethodGet, "/auth/invitation/postsignup.php?invitationtoken=asdf1234", nil, payload.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Title     string   `json:"title"`
		Messages  []string `json:"messages"`
		CourseURL string   `json:"course_url"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &page)
	require.Equal(t, "Signup complete", page.Title)
	require.Len(t, page.Messages, 2)
	require.Equal(t, "https://www.example.com/moodle/enrol/invitation/enrol.php?token=asdf1234", page.CourseURL)

	// a second signup with the same invitation is refused
	again := validSignup("asdf1234", "test@example.com")
	again["username"] = "otheruser"
	w = env.Request(http.MethodPost, "/auth/invitation/signup.php", again, "")
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "auth.signupaccountexists", testutil.DecodeResponse(t, w).Error.Code)
}

func TestSignupRedirectTargets(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateInvitation("preconf1", "pre@example.com")
	env.CreateInvitation("wants123", "wants@example.com")

	body := validSignup("preconf1", "pre@example.com")
	body["username"] = "preuser"
	body["preconfirm"] = true
	w := env.Request(http.MethodPost, "/auth/invitation/signup.php", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "https://www.example.com/moodle/enrol/invitation/enrol.php?token=preconf1",
		testutil.DecodeResponse(t, w).Redirect)

	body = validSignup("wants123", "wants@example.com")
	body["username"] = "wantsuser"
	body["wantsurl"] = "https://www.example.com/moodle/course/view.php?id=2"
	w = env.Request(http.MethodPost, "/auth/invitation/signup.php", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "https://www.example.com/moodle/course/view.php?id=2", testutil.DecodeResponse(t, w).Redirect)

	env.CreateInvitation("offsite1", "offsite@example.com")
	body = validSignup("offsite1", "offsite@example.com")
	body["username"] = "offsiteuser"
	body["wantsurl"] = "https://evil.example.net/phish"
	w = env.Request(http.MethodPost, "/auth/invitation/signup.php", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "https://www.example.com/moodle/auth/invitation/postsignup.php?invitationtoken=offsite1",
		testutil.DecodeResponse(t, w).Redirect)
	require.NotContains(t, w.Header().Get("Location"), "evil.example.net")
}

func TestSignupValidation(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.ConfirmPasswordOnSignup = true
	}))
	env.CreateInvitation("asdf1234", "test@example.com")

	missing := validSignup("asdf1234", "test@example.com")
	delete(missing, "firstname")
	w := env.Request(http.MethodPost, "/auth/invitation/signup.php", missing, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "firstname is required")

	badName := validSignup("asdf1234", "test@example.com")
	badName["username"] = "new user"
	badName["confirm_password"] = "Secret123!"
	w = env.Request(http.MethodPost, "/auth/invitation/signup.php", badName, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	mismatch := validSignup("asdf1234", "test@example.com")
	mismatch["confirm_password"] = "Different1!"
	w = env.Request(http.MethodPost, "/auth/invitation/signup.php", mismatch, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Passwords do not match", testutil.DecodeResponse(t, w).Error.Message)

	// a different email than the invitation's is a client bug, not a user error
	wrongEmail := validSignup("asdf1234", "other@example.com")
	wrongEmail["confirm_password"] = "Secret123!"
	w = env.Request(http.MethodPost, "/auth/invitation/signup.php", wrongEmail, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.User{}).Where("auth = ?", models.AuthInvitation).Count(&count).Error)
	require.Zero(t, count)
}

func TestSignupGeneratesUsername(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.GenerateUsername = true
	}))
	env.CreateInvitation("asdf1234", "test@example.com")

	body := validSignup("asdf1234", "test@example.com")
	delete(body, "username")
	w := env.Request(http.MethodPost, "/auth/invitation/signup.php", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		User models.User `json:"user"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	require.Regexp(t, `^inviteduser\d+$`, payload.User.Username)
}

func TestSignupIsRateLimited(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRateLimit(2))

	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodPost, "/auth/invitation/signup.php", validSignup("nope", "x@example.com"), "")
		require.Equal(t, http.StatusGone, w.Code, w.Body.String())
	}
	w := env.Request(http.MethodPost, "/auth/invitation/signup.php", validSignup("nope", "x@example.com"), "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestPostSignupRequiresLoginAndToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/auth/invitation/postsignup.php?invitationtoken=abc", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	env.CreateUser("alice", "alice@example.com", "Secret123!")
	login := env.Login("alice", "Secret123!")

	w = env.Request(http.MethodGet, "/auth/invitation/postsignup.php?invitationtoken=%21%21", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

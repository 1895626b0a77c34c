package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/charlesng35/authinvite/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Success(ctx, http.StatusCreated, gin.H{"message": "ok"})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.Nil(t, resp.Error)
}

func TestRedirect(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Redirect(ctx, "/auth/invitation/signup.php?invitationtoken=abc", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/auth/invitation/signup.php?invitationtoken=abc", rec.Header().Get("Location"))
	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.Equal(t, "/auth/invitation/signup.php?invitationtoken=abc", resp.Redirect)
}

func TestErrorFromAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Error(ctx, appErrors.New("auth.invalidinvite", "expired", http.StatusGone))

	require.Equal(t, http.StatusGone, rec.Code)
	resp := decode(t, rec)
	require.False(t, resp.Success)
	require.Equal(t, "auth.invalidinvite", resp.Error.Code)
	require.Equal(t, "expired", resp.Error.Message)
}

func TestErrorFromPlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Error(ctx, errors.New("database gone"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	require.Equal(t, appErrors.ErrInternalServer.Code, resp.Error.Code)
	require.NotContains(t, rec.Body.String(), "database gone")
}

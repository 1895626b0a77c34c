package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/authinvite/internal/services"
	appErrors "github.com/charlesng35/authinvite/pkg/errors"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/response"
)

// localizedErrors carry a translated message under their error code.
var localizedErrors = map[string]string{
	services.ErrSignupNoInvite.Code:          "signuponlywithinvite",
	services.ErrSignupInvalidInvite.Code:     "invalidinvite",
	services.ErrSignupAccountExists.Code:     "signupaccountexists",
	services.ErrSignupProhibitedByEmail.Code: "signupprohibitedbyemail",
	services.ErrLoginProhibitedByEmail.Code:  "loginprohibitedbyemail",
}

// renderError writes err as an API error in the request language. Contract
// violations are programming errors of the client and surface as 500.
func renderError(c *gin.Context, catalog *i18n.Catalog, fallbackLang string, err error) {
	var violation *services.ContractViolationError
	if errors.As(err, &violation) {
		logger.WithModule("http").Error("signup contract violation",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	appErr := appErrors.FromError(err)
	if appErr.StatusCode >= 500 {
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	if key, ok := localizedErrors[appErr.Code]; ok && catalog != nil {
		appErr = appErr.WithMessage(catalog.String(requestLanguage(c, fallbackLang), key))
	}
	response.Error(c, appErr)
}

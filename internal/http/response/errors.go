package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scoutline/scoutline-backend/internal/platform/apierr"
)

// RespondAPIError maps a service error onto the wire. Typed errors carry
// their own status and kind; anything else is an opaque 500.
func RespondAPIError(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		RespondError(c, status, ae.Code, ae)
		return
	}
	RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
}

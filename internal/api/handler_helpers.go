package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/response"
)

func HandleError(c *gin.Context, logger internal.Logger, err error, status int, msg string) {
	requestID := c.GetString("request_id")
	logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
	var resp response.APIResponse
	switch status {
	case 400:
		resp = response.BadRequest(msg + ": " + err.Error())
	case 401:
		resp = response.Unauthorized(msg)
	case 404:
		resp = response.NotFound(msg + ": " + err.Error())
	case 409:
		resp = response.Conflict(msg + ": " + err.Error())
	case 500:
		resp = response.InternalError(msg + ": " + err.Error())
	default:
		resp = response.NewAppError(status, msg+": "+err.Error())
	}
	c.JSON(status, resp)
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Infof("[request_id=%s] Success", requestID)
	c.JSON(200, response.Success(data, meta))
}

// statusFor maps service-layer errors onto HTTP codes. Validation and
// transition errors are the caller's fault; everything else is ours.
func statusFor(err error) int {
	switch {
	case errors.Is(err, internal.ErrInvalidDuration):
		return 400
	case errors.Is(err, internal.ErrInvalidTransition):
		return 409
	case errors.Is(err, internal.ErrActiveConflict):
		return 409
	case errors.Is(err, internal.ErrNotFound):
		return 404
	case errors.Is(err, internal.ErrUsernameTaken):
		return 409
	case errors.Is(err, internal.ErrInvalidToken):
		return 401
	default:
		return 500
	}
}

func currentUser(c *gin.Context) *internal.User {
	return c.MustGet("user").(*internal.User)
}

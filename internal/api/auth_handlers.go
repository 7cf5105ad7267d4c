package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/yourname/focustracker/internal/auth"
)

var validate = validator.New()

func Register(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if app.Auth() == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "registration disabled in local auth mode"})
			return
		}
		var in auth.RegisterInput
		if err := c.ShouldBindJSON(&in); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		if err := validate.Struct(&in); err != nil {
			HandleError(c, app.Logger(), err, 400, "Registration validation failed")
			return
		}
		user, err := app.Auth().Register(c.Request.Context(), in)
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Registration failed")
			return
		}
		HandleSuccess(c, app.Logger(), user, nil)
	}
}

func Login(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if app.Auth() == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "login disabled in local auth mode"})
			return
		}
		var in auth.LoginInput
		if err := c.ShouldBindJSON(&in); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		if err := validate.Struct(&in); err != nil {
			HandleError(c, app.Logger(), err, 400, "Login validation failed")
			return
		}
		token, user, err := app.Auth().Login(c.Request.Context(), in)
		if err != nil {
			HandleError(c, app.Logger(), err, 401, "Invalid credentials")
			return
		}
		HandleSuccess(c, app.Logger(), gin.H{"token": token, "user": user}, nil)
	}
}

func Logout(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if app.Auth() == nil {
			HandleSuccess(c, app.Logger(), nil, nil)
			return
		}
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if err := app.Auth().Logout(c.Request.Context(), token); err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Logout failed")
			return
		}
		HandleSuccess(c, app.Logger(), nil, nil)
	}
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"weakapi/internal/service"
)

// UserHandler serves the account endpoints.
type UserHandler struct {
	accounts service.AccountService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(accounts service.AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// SignupRequest represents a signup request. IsAdmin is optional.
type SignupRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	IsAdmin  *bool  `json:"is_admin,omitempty"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// Signup godoc
// @Summary Create an account
// @Tags user
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Account data"
// @Success 201 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /user/signup [post]
func (h *UserHandler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := h.accounts.Signup(c.Request().Context(), req.Username, req.Password, req.IsAdmin); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, MessageResponse{Msg: "Account created"})
}

// Login godoc
// @Summary Exchange credentials for a bearer token
// @Tags user
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /user/login [post]
func (h *UserHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.accounts.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: token})
}

package handler

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	apperrors "weakapi/internal/errors"
	"weakapi/internal/model"
)

const actingUserKey = "acting_user"

// MessageResponse is the body of successful mutations.
type MessageResponse struct {
	Msg string `json:"msg"`
}

// bindAndValidate decodes the request into req and runs the registered
// validator. Both failures surface as validation errors.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return apperrors.WithMessage(apperrors.ErrValidation, fmt.Sprint(he.Message))
		}
		return apperrors.Validation(err)
	}
	if err := c.Validate(req); err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return err
		}
		return apperrors.Validation(err)
	}
	return nil
}

// SetActingUser stores the authenticated user on the request context.
func SetActingUser(c echo.Context, user *model.User) {
	c.Set(actingUserKey, user)
}

// ActingUser returns the user resolved by the authentication middleware.
func ActingUser(c echo.Context) (*model.User, error) {
	user, ok := c.Get(actingUserKey).(*model.User)
	if !ok || user == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return user, nil
}

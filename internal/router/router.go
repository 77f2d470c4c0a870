package router

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	echoSwagger "github.com/swaggo/echo-swagger"

	"weakapi/internal/auth"
	apperrors "weakapi/internal/errors"
	"weakapi/internal/handler"
	"weakapi/internal/logging"
	"weakapi/internal/metrics"
)

// claimsKey is where echo-jwt stores the verified claims.
const claimsKey = "user"

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	log logrus.FieldLogger,
	m *metrics.Metrics,
	guard *auth.Guard,
	userHandler *handler.UserHandler,
	noteHandler *handler.NoteHandler,
) {
	e.HTTPErrorHandler = apperrors.HTTPErrorHandler(log)
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestID())
	e.Use(m.Middleware())
	e.Use(logging.Middleware(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.MessageResponse{Msg: "Welcome"})
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	user := e.Group("/user")
	user.POST("/signup", userHandler.Signup)
	user.POST("/login", userHandler.Login)

	// Secured routes: bearer token, then the acting user must still exist.
	notes := e.Group("/notes",
		echojwt.WithConfig(echojwt.Config{
			ContextKey:  claimsKey,
			TokenLookup: "header:" + echo.HeaderAuthorization,
			ParseTokenFunc: func(c echo.Context, header string) (interface{}, error) {
				return guard.Authenticate(header)
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return authFailure(m, err)
			},
		}),
		loadActingUser(guard, m),
	)
	notes.GET("", noteHandler.List)
	notes.POST("/create", noteHandler.Create)
	notes.DELETE("/delete", noteHandler.Delete)
	notes.GET("/:note_id", noteHandler.View)
}

// authFailure classifies a token rejection and returns the domain error
// the error handler renders.
func authFailure(m *metrics.Metrics, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		m.AuthFailure(metrics.ReasonExpired)
		return apperrors.ErrTokenExpired
	case errors.Is(err, apperrors.ErrInvalidToken):
		m.AuthFailure(metrics.ReasonInvalid)
		return apperrors.ErrInvalidToken
	default:
		// no header, or not a bearer scheme
		m.AuthFailure(metrics.ReasonMissing)
		return apperrors.ErrNotAuthenticated
	}
}

func loadActingUser(guard *auth.Guard, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get(claimsKey).(*auth.Claims)
			if !ok {
				return apperrors.ErrNotAuthenticated
			}

			user, err := guard.LoadActingUser(c.Request().Context(), claims)
			if err != nil {
				if errors.Is(err, apperrors.ErrUserNotFound) {
					m.AuthFailure(metrics.ReasonUserNotFound)
				}
				return err
			}

			handler.SetActingUser(c, user)
			return next(c)
		}
	}
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return apperrors.Validation(err)
	}
	return nil
}

package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// LoginHandler exchanges HTTP Basic credentials for a bearer token.
type LoginHandler struct {
	issuer *TokenIssuer
	stores []UserStore
	cfg    Config
	log    zerolog.Logger
}

func NewLoginHandler(cfg Config, stores []UserStore, log zerolog.Logger) *LoginHandler {
	return &LoginHandler{
		issuer: NewTokenIssuer(cfg),
		stores: stores,
		cfg:    cfg,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// RegisterRoutes mounts the login endpoint.
func (h *LoginHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
}

type loginRequest struct {
	// DesiredLifetime is the requested session length in seconds.
	DesiredLifetime int64 `json:"desiredLifetime"`
}

type loginResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login authenticates Basic credentials against the configured realms
// and issues a session token.
func (h *LoginHandler) Login(c echo.Context) error {
	username, password, ok := c.Request().BasicAuth()
	if !ok {
		c.Response().Header().Set("WWW-Authenticate", "Basic realm="+h.cfg.Issuer)
		return echo.NewHTTPError(http.StatusUnauthorized, "basic credentials required")
	}

	subject, err := Authenticate(c.Request().Context(), h.stores, username, password)
	if err != nil {
		h.log.Warn().Str("username", username).Msg("login rejected")
		c.Response().Header().Set("WWW-Authenticate", "Basic realm="+h.cfg.Issuer)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	var req loginRequest
	// The body is optional; a bad one simply means default lifetime.
	_ = c.Bind(&req)

	lifetime := h.cfg.DefaultLifetime
	if req.DesiredLifetime > 0 {
		desired := time.Duration(req.DesiredLifetime) * time.Second
		if desired <= h.cfg.MaxLifetime {
			lifetime = desired
		}
	}

	token, err := h.issuer.Sign(subject, lifetime)
	if err != nil {
		h.log.Error().Err(err).Msg("token signing failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}

	h.log.Info().Str("subject", subject).Msg("login succeeded")
	return c.JSON(http.StatusCreated, loginResponse{
		TokenType:   "Bearer",
		AccessToken: token,
		ExpiresIn:   int64(lifetime / time.Second),
	})
}

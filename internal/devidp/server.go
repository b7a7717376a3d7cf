package devidp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apimw "github.com/atjeff/kratos-echo/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Config holds devidp settings.
type Config struct {
	PublicURL    string
	FlowTTL      time.Duration
	SessionTTL   time.Duration
	MaxAttempts  int
	AutoRegister bool
	Version      string
	// LoginRate limits POST /self-service/login per client IP; zero disables it.
	LoginRate  rate.Limit
	LoginBurst int
}

func (c *Config) applyDefaults() {
	if c.FlowTTL <= 0 {
		c.FlowTTL = 10 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Version == "" {
		c.Version = "v1.3.0-devidp"
	}
	if c.LoginBurst <= 0 {
		c.LoginBurst = 10
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
}

// Server is the devidp HTTP server.
type Server struct {
	cfg      Config
	store    Store
	courier  Courier
	validate *validator.Validate
	logger   *slog.Logger
	echo     *echo.Echo
	limiter  *apimw.RateLimiter
	now      func() time.Time
}

// New wires the devidp routes.
func New(cfg Config, store Store, courier Courier, logger *slog.Logger) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if courier == nil {
		courier = NewLogCourier(logger)
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		courier:  courier,
		validate: validator.New(),
		logger:   logger,
		echo:     echo.New(),
		now:      time.Now,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())

	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/health/alive", s.handleHealth)
	s.echo.GET("/health/ready", s.handleHealth)

	s.echo.GET("/self-service/login/api", s.handleCreateLoginFlow)
	var loginMW []echo.MiddlewareFunc
	if cfg.LoginRate > 0 {
		s.limiter = apimw.NewRateLimiter(cfg.LoginRate, cfg.LoginBurst)
		loginMW = append(loginMW, s.limiter.Middleware())
	}
	s.echo.POST("/self-service/login", s.handleUpdateLoginFlow, loginMW...)
	s.echo.GET("/sessions/whoami", s.handleWhoami)
	s.echo.DELETE("/self-service/logout/api", s.handleLogout)

	s.echo.GET("/admin/identities", s.handleListIdentities)
	s.echo.POST("/admin/identities", s.handleCreateIdentity)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Echo exposes the router, e.g. to add logging middleware.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// SetPublicURL updates the URL advertised in flows, for listeners bound
// after construction.
func (s *Server) SetPublicURL(u string) {
	s.cfg.PublicURL = strings.TrimRight(u, "/")
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// CreateIdentity registers email.
func (s *Server) CreateIdentity(ctx context.Context, email string) (*Identity, error) {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("devidp: invalid email %q: %w", email, err)
	}
	now := s.now().UTC()
	identity := &Identity{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "identity created", "identity_id", identity.ID)
	return identity, nil
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, wireVersion{Version: s.cfg.Version})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateLoginFlow(c echo.Context) error {
	ctx := c.Request().Context()
	now := s.now().UTC()

	flow := &Flow{
		ID:         uuid.NewString(),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.FlowTTL),
		RequestURL: s.cfg.PublicURL + "/self-service/login/api",
		State:      StateChooseMethod,
	}
	if err := s.store.SaveFlow(ctx, flow); err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, s.flowJSON(flow))
}

func (s *Server) handleUpdateLoginFlow(c echo.Context) error {
	ctx := c.Request().Context()

	flowID := c.QueryParam("flow")
	if flowID == "" {
		return writeError(c, http.StatusBadRequest, "", "The flow query parameter is missing or malformed.")
	}
	flow, err := s.store.Flow(ctx, flowID)
	if errors.Is(err, ErrNotFound) {
		return writeError(c, http.StatusNotFound, "", "Unable to locate the resource")
	}
	if err != nil {
		return s.internalError(c, err)
	}
	if s.now().After(flow.ExpiresAt) || flow.State == StatePassedChallenge {
		return writeError(c, http.StatusGone, "self_service_flow_expired", "The self-service flow expired, initiate a new one.")
	}

	var body updateLoginBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "", "The request body could not be decoded.")
	}
	if body.Method != "code" {
		return s.flowError(c, flow, errorText(msgNoStrategy, textNoStrategy))
	}

	identifier := strings.ToLower(strings.TrimSpace(body.Identifier))
	if body.Code == "" || body.Resend != "" {
		return s.sendCode(c, flow, identifier)
	}
	return s.verifyCode(c, flow, identifier, strings.TrimSpace(body.Code))
}

func (s *Server) sendCode(c echo.Context, flow *Flow, identifier string) error {
	ctx := c.Request().Context()

	if identifier == "" {
		return s.flowError(c, flow, errorText(msgFieldRequired, "Property identifier is missing."))
	}
	if err := s.validate.Var(identifier, "email"); err != nil {
		return s.flowError(c, flow, errorText(msgValidationFailed, fmt.Sprintf("%q is not valid \"email\"", identifier)))
	}

	if _, err := s.store.IdentityByEmail(ctx, identifier); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return s.internalError(c, err)
		}
		if !s.cfg.AutoRegister {
			return s.flowError(c, flow, errorText(msgAccountNotFound, textAccountNotFound))
		}
		if _, err := s.CreateIdentity(ctx, identifier); err != nil && !errors.Is(err, ErrConflict) {
			return s.internalError(c, err)
		}
	}

	code, err := generateCode(identifier)
	if err != nil {
		return s.internalError(c, err)
	}
	flow.State = StateSentEmail
	flow.Identifier = identifier
	flow.Code = code
	flow.Attempts = 0
	if err := s.store.SaveFlow(ctx, flow); err != nil {
		return s.internalError(c, err)
	}
	if err := s.courier.SendLoginCode(ctx, identifier, code); err != nil {
		return s.internalError(c, err)
	}

	// Kratos reports the sent code as a 400 carrying the updated flow.
	out := s.flowJSON(flow)
	out.UI.Messages = []wireText{{ID: msgCodeSent, Text: textCodeSent, Type: "info"}}
	return c.JSON(http.StatusBadRequest, out)
}

func (s *Server) verifyCode(c echo.Context, flow *Flow, identifier, code string) error {
	ctx := c.Request().Context()

	if flow.State != StateSentEmail || (identifier != "" && identifier != flow.Identifier) {
		return s.flowError(c, flow, errorText(msgInvalidCode, textInvalidCode))
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(flow.Code)) != 1 {
		flow.Attempts++
		if flow.Attempts >= s.cfg.MaxAttempts {
			flow.State = StatePassedChallenge
			flow.Code = ""
			if err := s.store.SaveFlow(ctx, flow); err != nil {
				return s.internalError(c, err)
			}
			return writeError(c, http.StatusGone, "self_service_flow_expired", "Too many failed attempts, initiate a new flow.")
		}
		if err := s.store.SaveFlow(ctx, flow); err != nil {
			return s.internalError(c, err)
		}
		return s.flowError(c, flow, errorText(msgInvalidCode, textInvalidCode))
	}

	identity, err := s.store.IdentityByEmail(ctx, flow.Identifier)
	if err != nil {
		return s.internalError(c, err)
	}

	token, err := newSessionToken()
	if err != nil {
		return s.internalError(c, err)
	}
	now := s.now().UTC()
	session := &Session{
		ID:              uuid.NewString(),
		Token:           token,
		IdentityID:      identity.ID,
		Active:          true,
		IssuedAt:        now,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return s.internalError(c, err)
	}

	flow.State = StatePassedChallenge
	flow.Code = ""
	if err := s.store.SaveFlow(ctx, flow); err != nil {
		return s.internalError(c, err)
	}

	s.logger.InfoContext(ctx, "session issued", "identity_id", identity.ID, "session_id", session.ID)
	return c.JSON(http.StatusOK, wireLoginSuccess{
		Session:      s.sessionJSON(session, identity),
		SessionToken: token,
	})
}

func (s *Server) handleWhoami(c echo.Context) error {
	ctx := c.Request().Context()

	session, identity, err := s.lookupSession(ctx, sessionCredential(c.Request()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return writeError(c, http.StatusUnauthorized, "session_inactive", "No valid session credentials found in the request.")
		}
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, s.sessionJSON(session, identity))
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()

	var body logoutBody
	if err := c.Bind(&body); err != nil || body.SessionToken == "" {
		return writeError(c, http.StatusBadRequest, "", "The session_token is missing.")
	}
	if err := s.store.DeleteSession(ctx, body.SessionToken); err != nil {
		if errors.Is(err, ErrNotFound) {
			return writeError(c, http.StatusForbidden, "session_inactive", "The requested action was forbidden")
		}
		return s.internalError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListIdentities(c echo.Context) error {
	identities, err := s.store.ListIdentities(c.Request().Context())
	if err != nil {
		return s.internalError(c, err)
	}
	out := make([]wireIdentity, 0, len(identities))
	for _, identity := range identities {
		out = append(out, s.identityJSON(identity))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateIdentity(c echo.Context) error {
	var body createIdentityBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "", "The request body could not be decoded.")
	}

	email := strings.ToLower(strings.TrimSpace(body.Traits.Email))
	identity, err := s.CreateIdentity(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return writeError(c, http.StatusConflict, "", "An identity with the same identifier already exists.")
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return writeError(c, http.StatusBadRequest, "", fmt.Sprintf("%q is not valid \"email\"", email))
		}
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusCreated, s.identityJSON(identity))
}

func (s *Server) lookupSession(ctx context.Context, token string) (*Session, *Identity, error) {
	if token == "" {
		return nil, nil, ErrNotFound
	}
	session, err := s.store.SessionByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if !session.Active || s.now().After(session.ExpiresAt) {
		return nil, nil, ErrNotFound
	}
	identity, err := s.store.IdentityByID(ctx, session.IdentityID)
	if err != nil {
		return nil, nil, err
	}
	return session, identity, nil
}

// sessionCredential reads the token the way Kratos does: header, bearer, cookie.
func sessionCredential(r *http.Request) string {
	if token := r.Header.Get("X-Session-Token"); token != "" {
		return token
	}
	if auth := r.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie("ory_kratos_session"); err == nil {
		return cookie.Value
	}
	return ""
}

func newSessionToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "ory_st_" + hex.EncodeToString(b), nil
}

func (s *Server) flowJSON(flow *Flow) wireFlow {
	return wireFlow{
		ID:           flow.ID,
		Type:         "api",
		ExpiresAt:    flow.ExpiresAt,
		IssuedAt:     flow.IssuedAt,
		RequestURL:   flow.RequestURL,
		State:        flow.State,
		RequestedAAL: authenticatorAssuranceLevel1,
		UI: wireUI{
			Action: s.cfg.PublicURL + "/self-service/login?flow=" + flow.ID,
			Method: http.MethodPost,
			Nodes:  []struct{}{},
		},
	}
}

func (s *Server) flowError(c echo.Context, flow *Flow, msg wireText) error {
	out := s.flowJSON(flow)
	out.UI.Messages = []wireText{msg}
	return c.JSON(http.StatusBadRequest, out)
}

func (s *Server) identityJSON(identity *Identity) wireIdentity {
	return wireIdentity{
		ID:        identity.ID,
		SchemaID:  defaultSchemaID,
		SchemaURL: s.cfg.PublicURL + "/schemas/" + defaultSchemaID,
		State:     "active",
		Traits:    map[string]any{"email": identity.Email},
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	}
}

func (s *Server) sessionJSON(session *Session, identity *Identity) wireSession {
	return wireSession{
		ID:                          session.ID,
		Active:                      session.Active,
		ExpiresAt:                   session.ExpiresAt,
		AuthenticatedAt:             session.AuthenticatedAt,
		IssuedAt:                    session.IssuedAt,
		AuthenticatorAssuranceLevel: authenticatorAssuranceLevel1,
		Identity:                    s.identityJSON(identity),
	}
}

func (s *Server) internalError(c echo.Context, err error) error {
	s.logger.ErrorContext(c.Request().Context(), "devidp request failed", "path", c.Path(), "error", err)
	return writeError(c, http.StatusInternalServerError, "", "An internal server error occurred.")
}

func writeError(c echo.Context, status int, id, message string) error {
	return c.JSON(status, wireErrorBody{Error: wireGenericError{
		ID:      id,
		Code:    status,
		Status:  http.StatusText(status),
		Message: message,
	}})
}

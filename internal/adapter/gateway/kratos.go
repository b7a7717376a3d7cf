package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	kratos "github.com/ory/kratos-client-go"
)

const (
	codeMethod        = "code"
	flowStateSentCode = "sent_email"
)

// Kratos UI message ids the sign-in form reacts to.
const (
	msgFlowExpired       int64 = 4010001
	msgInvalidCode       int64 = 4010008
	msgAccountNotFound   int64 = 4000035
	msgCredentialInvalid int64 = 4000006
)

// KratosGateway implements domain.SessionValidator, domain.LoginProvider,
// domain.SessionRevoker and domain.ProviderHealth against the Kratos public API.
type KratosGateway struct {
	client  *kratos.APIClient
	timeout time.Duration
}

// NewKratosGateway creates a new Kratos gateway. A nil httpClient gets a
// tuned transport.
func NewKratosGateway(baseURL string, httpClient *http.Client, timeout time.Duration) *KratosGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{URL: baseURL},
	}
	configuration.UserAgent = "kratos-echo"

	if httpClient == nil {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
	configuration.HTTPClient = httpClient

	return &KratosGateway{
		client:  kratos.NewAPIClient(configuration),
		timeout: timeout,
	}
}

// API exposes the underlying SDK client.
func (g *KratosGateway) API() *kratos.APIClient {
	return g.client
}

// ValidateSession validates a native session token and returns the identity.
func (g *KratosGateway) ValidateSession(ctx context.Context, sessionToken string) (*domain.Identity, error) {
	if sessionToken == "" {
		return nil, domain.ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session, resp, err := g.client.FrontendAPI.ToSession(ctx).XSessionToken(sessionToken).Execute()
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, domain.ErrAuthFailed
			case http.StatusTooManyRequests:
				return nil, domain.ErrRateLimited
			}
			return nil, fmt.Errorf("%w: kratos returned status %d", domain.ErrProviderUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	return identityFromSession(session)
}

// StartCodeLogin creates a native login flow and asks Kratos to send a
// one-time code to identifier. It returns the flow id to complete later.
func (g *KratosGateway) StartCodeLogin(ctx context.Context, identifier string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	flow, resp, err := g.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return "", mapFlowError(err, resp)
	}

	body := kratos.UpdateLoginFlowWithCodeMethod{Method: codeMethod}
	body.SetIdentifier(identifier)

	_, resp, err = g.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithCodeMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err == nil {
		return "", fmt.Errorf("%w: login completed without a code", domain.ErrProviderUnavailable)
	}

	// Kratos answers the identifier step with 400 and the flow moved to
	// the sent_email state.
	if payload, ok := decodeFlowPayload(err); ok && resp != nil && resp.StatusCode == http.StatusBadRequest && payload.State == flowStateSentCode {
		return flow.Id, nil
	}
	return "", mapFlowError(err, resp)
}

// CompleteCodeLogin submits the code for flowID and returns the new session.
func (g *KratosGateway) CompleteCodeLogin(ctx context.Context, flowID, identifier, code string) (*domain.SignInResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body := kratos.UpdateLoginFlowWithCodeMethod{Method: codeMethod}
	body.SetIdentifier(identifier)
	body.SetCode(code)

	result, resp, err := g.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flowID).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithCodeMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		return nil, mapFlowError(err, resp)
	}

	sessionToken := result.GetSessionToken()
	if sessionToken == "" {
		return nil, fmt.Errorf("%w: no session token in login response", domain.ErrProviderUnavailable)
	}

	session := result.GetSession()
	identity, err := identityFromSession(&session)
	if err != nil {
		return nil, err
	}

	return &domain.SignInResult{
		Identity:     identity,
		SessionToken: sessionToken,
	}, nil
}

// RevokeSession logs out the native session behind sessionToken.
func (g *KratosGateway) RevokeSession(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return domain.ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratos.NewPerformNativeLogoutBody(sessionToken)).
		Execute()
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return domain.ErrSessionNotFound
			}
			return fmt.Errorf("%w: kratos returned status %d", domain.ErrProviderUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	return nil
}

// Version returns the Kratos version, doubling as a readiness probe.
func (g *KratosGateway) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	version, resp, err := g.client.MetadataAPI.GetVersion(ctx).Execute()
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("%w: kratos returned status %d", domain.ErrProviderUnavailable, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	return version.GetVersion(), nil
}

func identityFromSession(session *kratos.Session) (*domain.Identity, error) {
	if session.Active != nil && !*session.Active {
		return nil, domain.ErrSessionInactive
	}

	if session.Identity == nil {
		return nil, domain.ErrMissingIdentity
	}

	email := ""
	if traits, ok := session.Identity.Traits.(map[string]interface{}); ok {
		if emailVal, ok := traits["email"]; ok {
			if emailStr, ok := emailVal.(string); ok {
				email = emailStr
			}
		}
	}

	identity := &domain.Identity{
		UserID:    session.Identity.Id,
		Email:     email,
		SessionID: session.Id,
	}
	if session.Identity.CreatedAt != nil {
		identity.CreatedAt = *session.Identity.CreatedAt
	}
	if session.ExpiresAt != nil {
		identity.ExpiresAt = *session.ExpiresAt
		if identity.ExpiresAt.Before(time.Now()) {
			return nil, domain.ErrSessionExpired
		}
	}
	return identity, nil
}

// uiText mirrors a Kratos UI message.
type uiText struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// flowPayload is the subset of a Kratos flow or error body the gateway reads.
type flowPayload struct {
	State string `json:"state"`
	UI    struct {
		Messages []uiText `json:"messages"`
		Nodes    []struct {
			Messages []uiText `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
	Error *struct {
		ID      string `json:"id"`
		Code    int    `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// firstError returns the first error-typed message, flow level first.
func (p *flowPayload) firstError() (uiText, bool) {
	for _, m := range p.UI.Messages {
		if m.Type == "error" {
			return m, true
		}
	}
	for _, n := range p.UI.Nodes {
		for _, m := range n.Messages {
			if m.Type == "error" {
				return m, true
			}
		}
	}
	return uiText{}, false
}

func decodeFlowPayload(err error) (*flowPayload, bool) {
	var apiErr *kratos.GenericOpenAPIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	var payload flowPayload
	if jsonErr := json.Unmarshal(apiErr.Body(), &payload); jsonErr != nil {
		return nil, false
	}
	return &payload, true
}

// mapFlowError converts a failed self-service call into a domain error,
// keeping the Kratos message so the form can show it.
func mapFlowError(err error, resp *http.Response) error {
	if resp == nil {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusGone:
		return domain.ErrFlowExpired
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrAuthFailed
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusNotFound:
	default:
		return fmt.Errorf("%w: kratos returned status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	payload, ok := decodeFlowPayload(err)
	if !ok {
		return fmt.Errorf("%w: unreadable kratos response", domain.ErrProviderUnavailable)
	}

	if msg, ok := payload.firstError(); ok {
		return &domain.ProviderMessageError{Kind: kindForMessage(msg.ID), ID: msg.ID, Text: msg.Text}
	}
	if payload.Error != nil {
		if payload.Error.ID == "self_service_flow_expired" {
			return domain.ErrFlowExpired
		}
		if resp.StatusCode == http.StatusNotFound {
			return domain.ErrFlowExpired
		}
		return &domain.ProviderMessageError{Kind: domain.ErrInvalidIdentifier, Text: payload.Error.Message}
	}
	return fmt.Errorf("%w: kratos returned status %d", domain.ErrProviderUnavailable, resp.StatusCode)
}

func kindForMessage(id int64) error {
	switch id {
	case msgAccountNotFound:
		return domain.ErrUnknownIdentifier
	case msgInvalidCode, msgCredentialInvalid:
		return domain.ErrInvalidCode
	case msgFlowExpired:
		return domain.ErrFlowExpired
	default:
		return domain.ErrInvalidIdentifier
	}
}

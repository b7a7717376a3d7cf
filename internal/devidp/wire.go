package devidp

import "time"

// Kratos UI message ids.
const (
	msgCodeSent            int64 = 1010014
	msgValidationFailed    int64 = 4000001
	msgFieldRequired       int64 = 4000002
	msgAccountNotFound     int64 = 4000035
	msgNoStrategy          int64 = 4010002
	msgInvalidCode         int64 = 4010008
	textCodeSent                 = "An email containing a code has been sent to the email address you provided. If you have not received an email, check the spelling of the address and retry the login."
	textAccountNotFound          = "This account does not exist or has not setup sign in with code."
	textInvalidCode              = "The login code is invalid or has already been used. Please try again."
	textNoStrategy               = "Could not find a strategy to log you in with. Did you fill out the form correctly?"
	defaultSchemaID              = "default"
	authenticatorAssuranceLevel1 = "aal1"
)

type wireText struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

func errorText(id int64, text string) wireText {
	return wireText{ID: id, Text: text, Type: "error"}
}

type wireUI struct {
	Action   string     `json:"action"`
	Method   string     `json:"method"`
	Nodes    []struct{} `json:"nodes"`
	Messages []wireText `json:"messages,omitempty"`
}

type wireFlow struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	ExpiresAt    time.Time `json:"expires_at"`
	IssuedAt     time.Time `json:"issued_at"`
	RequestURL   string    `json:"request_url"`
	State        string    `json:"state"`
	RequestedAAL string    `json:"requested_aal"`
	Refresh      bool      `json:"refresh"`
	UI           wireUI    `json:"ui"`
}

type wireIdentity struct {
	ID        string         `json:"id"`
	SchemaID  string         `json:"schema_id"`
	SchemaURL string         `json:"schema_url"`
	State     string         `json:"state"`
	Traits    map[string]any `json:"traits"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type wireSession struct {
	ID                          string       `json:"id"`
	Active                      bool         `json:"active"`
	ExpiresAt                   time.Time    `json:"expires_at"`
	AuthenticatedAt             time.Time    `json:"authenticated_at"`
	IssuedAt                    time.Time    `json:"issued_at"`
	AuthenticatorAssuranceLevel string       `json:"authenticator_assurance_level"`
	Identity                    wireIdentity `json:"identity"`
}

type wireLoginSuccess struct {
	Session      wireSession `json:"session"`
	SessionToken string      `json:"session_token"`
}

type wireGenericError struct {
	ID      string `json:"id,omitempty"`
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

type wireErrorBody struct {
	Error wireGenericError `json:"error"`
}

type wireVersion struct {
	Version string `json:"version"`
}

type updateLoginBody struct {
	Method     string `json:"method"`
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
	CsrfToken  string `json:"csrf_token"`
	Resend     string `json:"resend"`
}

type logoutBody struct {
	SessionToken string `json:"session_token"`
}

type createIdentityBody struct {
	SchemaID string `json:"schema_id"`
	Traits   struct {
		Email string `json:"email"`
	} `json:"traits"`
}

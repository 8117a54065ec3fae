package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/happy-carpenter/carpenter-go/apierror"
	"github.com/happy-carpenter/carpenter-go/credentials"
	"github.com/happy-carpenter/carpenter-go/session"
)

const (
	routeLogin    = "/dj-rest-auth/login/"
	routeRegister = "/dj-rest-auth/registration/"
	routeRefresh  = "/dj-rest-auth/token/refresh/"
	routeLogout   = "/dj-rest-auth/logout/"
)

var _ session.Backend = (*AuthBackend)(nil)

// AuthBackend is the REST implementation of session.Backend. Auth endpoints
// bypass the gateway's attach-and-retry path on purpose: a login or refresh
// call must never itself trigger a refresh.
type AuthBackend struct {
	baseURL string
	client  Doer
}

func NewAuthBackend(baseURL string, client Doer) (*AuthBackend, error) {
	if baseURL == "" {
		return nil, errors.New("[NewAuthBackend] baseURL is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &AuthBackend{baseURL: baseURL, client: client}, nil
}

// tokenPayload is the dj-rest-auth token response shape.
type tokenPayload struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    struct {
		PK       json.Number `json:"pk"`
		Username string      `json:"username"`
	} `json:"user"`
}

func (p *tokenPayload) credential() *credentials.Credential {
	credential := &credentials.Credential{
		AccessToken:  p.Access,
		RefreshToken: p.Refresh,
		SubjectID:    p.User.PK.String(),
		Username:     p.User.Username,
	}
	credential.DeriveExpiry()
	return credential
}

func (b *AuthBackend) Login(ctx context.Context, username, password string) (*credentials.Credential, error) {
	payload := map[string]string{"username": username, "password": password}

	var token tokenPayload
	if err := b.post(ctx, routeLogin, payload, &token); err != nil {
		return nil, mapLoginError(err)
	}
	return token.credential(), nil
}

func (b *AuthBackend) Register(ctx context.Context, form session.RegistrationForm) (*credentials.Credential, error) {
	var token tokenPayload
	if err := b.post(ctx, routeRegister, form, &token); err != nil {
		return nil, errors.Wrap(err, "[AuthBackend.Register]")
	}
	return token.credential(), nil
}

func (b *AuthBackend) Refresh(ctx context.Context, refreshToken string) (*credentials.Credential, error) {
	payload := map[string]string{"refresh": refreshToken}

	var token tokenPayload
	if err := b.post(ctx, routeRefresh, payload, &token); err != nil {
		return nil, errors.Wrap(err, "[AuthBackend.Refresh]")
	}
	return token.credential(), nil
}

func (b *AuthBackend) Logout(ctx context.Context, refreshToken string) error {
	payload := map[string]string{"refresh": refreshToken}
	if err := b.post(ctx, routeLogout, payload, nil); err != nil {
		return errors.Wrap(err, "[AuthBackend.Logout]")
	}
	return nil
}

func (b *AuthBackend) post(ctx context.Context, route string, payload any, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	target := strings.TrimSuffix(b.baseURL, "/") + route
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return apierror.Wrap(apierror.NetworkError, err, "request failed")
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return apierror.Wrap(apierror.NetworkError, err, "reading response")
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return errorFromStatus(httpResp.StatusCode, body)
	}
	if dst == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Wrap(err, "unmarshal response")
	}
	return nil
}

// mapLoginError distinguishes a rejected username/password pair from a
// malformed form. dj-rest-auth reports the former under non_field_errors.
func mapLoginError(err error) error {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Kind != apierror.ValidationError {
		return err
	}
	if _, ok := apiErr.Fields["non_field_errors"]; ok || len(apiErr.Fields) == 0 {
		invalid := apierror.New(apierror.InvalidCredentials, "username or password rejected").
			WithStatus(apiErr.StatusCode).
			WithFields(apiErr.Fields)
		return invalid
	}
	return err
}

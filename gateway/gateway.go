// Package gateway is the single path every authenticated call takes to the
// remote API. It attaches the current credential, recognises rejected
// tokens, and performs at most one refresh-and-retry per request. It also
// hosts the concrete REST auth backend the session manager drives.
package gateway

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/happy-carpenter/carpenter-go/apierror"
	"github.com/happy-carpenter/carpenter-go/session"
)

// Doer issues a single HTTP request. *http.Client satisfies it; tests may
// substitute their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway wraps outbound calls to the remote API.
type Gateway struct {
	baseURL  string
	client   Doer
	sessions *session.Manager
}

// New creates a Gateway. A nil client falls back to http.DefaultClient;
// timeout policy belongs to the injected client.
func New(baseURL string, sessions *session.Manager, client Doer) (*Gateway, error) {
	if baseURL == "" {
		return nil, errors.New("[gateway.New] baseURL is required")
	}
	if sessions == nil {
		return nil, errors.New("[gateway.New] session manager is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{baseURL: baseURL, client: client, sessions: sessions}, nil
}

// Send issues the request with the current credential attached. If the
// server rejects the token, the request is retried exactly once after a
// (single-flight) refresh; a rejection on the retried attempt surfaces
// as-is. Every other failure propagates untouched — retry is reserved for
// the one auth-refresh case so a side-effecting POST is never replayed.
func (g *Gateway) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := req.marshalBody()
	if err != nil {
		return nil, err
	}

	// One request ID across both attempts: the retry is a replay of the
	// same logical request, not a new one.
	requestID := uuid.New().String()

	resp, err := g.attempt(ctx, req, body, requestID)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		log.Debug().Str("request_id", requestID).Str("path", req.Path).
			Msg("gateway: credential rejected, refreshing")
		if _, refreshErr := g.sessions.Refresh(ctx); refreshErr != nil {
			g.sessions.Logout(ctx)
			return nil, errors.Wrap(refreshErr, "[Gateway.Send] refresh after rejected credential")
		}
		resp, err = g.attempt(ctx, req, body, requestID)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromStatus(resp.StatusCode, resp.Body)
	}
	return resp, nil
}

func (g *Gateway) attempt(ctx context.Context, req Request, body []byte, requestID string) (*Response, error) {
	httpReq, err := req.build(g.baseURL, body)
	if err != nil {
		return nil, err
	}
	httpReq = httpReq.WithContext(ctx)
	httpReq.Header.Set("X-Request-ID", requestID)

	if credential := g.sessions.CurrentCredential(); credential != nil && credential.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+credential.AccessToken)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, apierror.Wrap(apierror.NetworkError, err, "request failed")
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierror.Wrap(apierror.NetworkError, err, "reading response")
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

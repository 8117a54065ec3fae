package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/happy-carpenter/carpenter-go/apierror"
	fakecredentialrepo "github.com/happy-carpenter/carpenter-go/credentials/repofake"
	"github.com/happy-carpenter/carpenter-go/gateway"
	"github.com/happy-carpenter/carpenter-go/session"
)

// authServer fakes the dj-rest-auth surface: login, registration, refresh
// and logout.
func authServer(t *testing.T, validAccess *string, refreshCalls, logoutCalls *int) *httptest.Server {
	t.Helper()

	router := mux.NewRouter()
	router.HandleFunc("/dj-rest-auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body.Username != "john" || body.Password != "password123" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string][]string{
				"non_field_errors": {"Unable to log in with provided credentials."},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access":  *validAccess,
			"refresh": "refresh-1",
			"user":    map[string]any{"pk": 7, "username": "john"},
		})
	}).Methods(http.MethodPost)

	router.HandleFunc("/dj-rest-auth/registration/", func(w http.ResponseWriter, r *http.Request) {
		var form map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))

		if form["password1"] != form["password2"] {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string][]string{
				"password2": {"The two password fields didn't match."},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access":  *validAccess,
			"refresh": "refresh-1",
			"user":    map[string]any{"pk": 8, "username": form["username"]},
		})
	}).Methods(http.MethodPost)

	router.HandleFunc("/dj-rest-auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		*refreshCalls++
		json.NewEncoder(w).Encode(map[string]string{"access": *validAccess})
	}).Methods(http.MethodPost)

	router.HandleFunc("/dj-rest-auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		*logoutCalls++
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	router.HandleFunc("/profiles/me/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+*validAccess {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "token expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"username": "john"})
	}).Methods(http.MethodGet)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestAuthBackend_Login(t *testing.T) {
	validAccess := "access-1"
	var refreshCalls, logoutCalls int
	server := authServer(t, &validAccess, &refreshCalls, &logoutCalls)

	backend, err := gateway.NewAuthBackend(server.URL, server.Client())
	require.NoError(t, err)

	t.Run("valid credentials return a populated credential", func(t *testing.T) {
		credential, err := backend.Login(context.Background(), "john", "password123")
		require.NoError(t, err)
		require.Equal(t, "access-1", credential.AccessToken)
		require.Equal(t, "refresh-1", credential.RefreshToken)
		require.Equal(t, "7", credential.SubjectID)
		require.Equal(t, "john", credential.Username)
	})

	t.Run("rejected credentials map to InvalidCredentials", func(t *testing.T) {
		_, err := backend.Login(context.Background(), "john", "wrong")
		require.Error(t, err)
		require.Equal(t, apierror.InvalidCredentials, apierror.KindOf(err))
	})
}

func TestAuthBackend_Register(t *testing.T) {
	validAccess := "access-1"
	var refreshCalls, logoutCalls int
	server := authServer(t, &validAccess, &refreshCalls, &logoutCalls)

	backend, err := gateway.NewAuthBackend(server.URL, server.Client())
	require.NoError(t, err)

	t.Run("success returns the new account's credential", func(t *testing.T) {
		credential, err := backend.Register(context.Background(), session.RegistrationForm{
			Username:  "jane",
			Email:     "jane@example.com",
			Password1: "password123",
			Password2: "password123",
			UserType:  "amateur",
		})
		require.NoError(t, err)
		require.Equal(t, "jane", credential.Username)
		require.Equal(t, "8", credential.SubjectID)
	})

	t.Run("server field errors come back verbatim", func(t *testing.T) {
		_, err := backend.Register(context.Background(), session.RegistrationForm{
			Username:  "jane",
			Email:     "jane@example.com",
			Password1: "password123",
			Password2: "different",
			UserType:  "amateur",
		})
		require.Error(t, err)

		var apiErr *apierror.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, apierror.ValidationError, apiErr.Kind)
		require.Equal(t, map[string][]string{"password2": {"The two password fields didn't match."}}, apiErr.Fields)
	})
}

// The full journey: log in, let the access token go stale server-side, and
// observe the next call succeed through exactly one invisible refresh.
func TestLoginThenStaleTokenIsTransparentlyRefreshed(t *testing.T) {
	validAccess := "access-1"
	var refreshCalls, logoutCalls int
	server := authServer(t, &validAccess, &refreshCalls, &logoutCalls)

	backend, err := gateway.NewAuthBackend(server.URL, server.Client())
	require.NoError(t, err)
	sessions, err := session.NewManager(fakecredentialrepo.NewFakeCredentialRepo(), backend)
	require.NoError(t, err)
	gw, err := gateway.New(server.URL, sessions, server.Client())
	require.NoError(t, err)

	credential, err := sessions.Login(context.Background(), "john", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, credential.AccessToken)

	// An hour passes; the server now rejects the old token.
	validAccess = "access-2"

	resp, err := gw.Send(context.Background(), gateway.Request{Method: http.MethodGet, Path: "/profiles/me/"})
	require.NoError(t, err)

	var profile map[string]string
	require.NoError(t, resp.DecodeJSON(&profile))
	require.Equal(t, "john", profile["username"])
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, "access-2", sessions.CurrentCredential().AccessToken)
}

func TestAuthBackend_Logout(t *testing.T) {
	validAccess := "access-1"
	var refreshCalls, logoutCalls int
	server := authServer(t, &validAccess, &refreshCalls, &logoutCalls)

	backend, err := gateway.NewAuthBackend(server.URL, server.Client())
	require.NoError(t, err)

	require.NoError(t, backend.Logout(context.Background(), "refresh-1"))
	require.Equal(t, 1, logoutCalls)
}

package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-identity-service/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, service Service, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(service, srv.URL, time.Second, testLogger())
	require.NoError(t, err)
	return c
}

func TestCheckAdminRoles(t *testing.T) {
	userID := uuid.New()

	t.Run("sole administrator is blocking", func(t *testing.T) {
		c := newTestClient(t, ServiceOrganization, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/organizations/user/"+userID.String()+"/admin-roles", r.URL.Path)
			_, _ = w.Write([]byte(`{"success":false,"message":"sole admin of Acme"}`))
		})

		check, err := c.CheckAdminRoles(context.Background(), userID)
		require.NoError(t, err)
		assert.True(t, check.Blocking)
		assert.Equal(t, "sole admin of Acme", check.Message)
	})

	t.Run("success is not blocking", func(t *testing.T) {
		c := newTestClient(t, ServiceProject, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/projects/user/"+userID.String()+"/admin-roles", r.URL.Path)
			_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
		})

		check, err := c.CheckAdminRoles(context.Background(), userID)
		require.NoError(t, err)
		assert.False(t, check.Blocking)
	})

	t.Run("non-2xx is a remote error", func(t *testing.T) {
		c := newTestClient(t, ServiceOrganization, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("maintenance"))
		})

		_, err := c.CheckAdminRoles(context.Background(), userID)
		var rerr *RemoteError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, ServiceOrganization, rerr.Service)
		assert.Equal(t, http.StatusServiceUnavailable, rerr.StatusCode)
		assert.Equal(t, "maintenance", rerr.Body)
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, ServiceProject, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})

		_, err := c.CheckAdminRoles(context.Background(), userID)
		var rerr *RemoteError
		assert.ErrorAs(t, err, &rerr)
	})
}

func TestDeleteDependencies(t *testing.T) {
	userID := uuid.New()

	t.Run("2xx succeeds", func(t *testing.T) {
		called := 0
		c := newTestClient(t, ServiceTask, func(w http.ResponseWriter, r *http.Request) {
			called++
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/api/tasks/user/"+userID.String()+"/dependencies", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		})

		require.NoError(t, c.DeleteDependencies(context.Background(), userID))
		assert.Equal(t, 1, called)
	})

	t.Run("500 carries status and body", func(t *testing.T) {
		c := newTestClient(t, ServiceTask, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"message":"db down"}`))
		})

		err := c.DeleteDependencies(context.Background(), userID)
		var rerr *RemoteError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, ServiceTask, rerr.Service)
		assert.Equal(t, "delete_dependencies", rerr.Operation)
		assert.Equal(t, http.StatusInternalServerError, rerr.StatusCode)
		assert.Contains(t, rerr.Body, "db down")
		assert.Contains(t, err.Error(), "status 500")
	})

	t.Run("transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		baseURL := srv.URL
		srv.Close()

		c, err := NewClient(ServiceTask, baseURL, time.Second, testLogger())
		require.NoError(t, err)

		err = c.DeleteDependencies(context.Background(), userID)
		var rerr *RemoteError
		require.ErrorAs(t, err, &rerr)
		assert.Zero(t, rerr.StatusCode)
		assert.NotNil(t, errors.Unwrap(rerr))
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := newTestClient(t, ServiceTask, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := c.DeleteDependencies(ctx, userID)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewClients(t *testing.T) {
	cfg := config.ServicesConfig{
		Timeout:      2 * time.Second,
		Organization: config.RemoteServiceConfig{BaseURL: "http://org:8081/"},
		Project:      config.RemoteServiceConfig{BaseURL: "http://project:8082"},
		Task:         config.RemoteServiceConfig{BaseURL: "http://task:8083"},
	}

	clients, err := NewClients(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ServiceOrganization, clients.Organization.Service())
	assert.Equal(t, "http://org:8081/api/organizations/user/"+uuid.Nil.String()+"/admin-roles",
		clients.Organization.userURL(uuid.Nil, "admin-roles"))
	assert.Equal(t, 2*time.Second, clients.Task.httpClient.Timeout)

	cfg.Project.BaseURL = "not a url"
	_, err = NewClients(cfg, testLogger())
	assert.Error(t, err)
}

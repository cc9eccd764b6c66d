package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-identity-service/app/observability/metrics"
)

// Service names a downstream service that owns user dependencies.
type Service string

const (
	ServiceOrganization Service = "organization"
	ServiceProject      Service = "project"
	ServiceTask         Service = "task"
)

// resource is the path segment each service exposes its user endpoints under.
func (s Service) resource() string {
	switch s {
	case ServiceOrganization:
		return "organizations"
	case ServiceProject:
		return "projects"
	case ServiceTask:
		return "tasks"
	}
	return string(s) + "s"
}

const maxErrorBody = 4 << 10

// AdminRoleCheck is the answer to "is this user the sole administrator of anything?".
type AdminRoleCheck struct {
	Blocking bool
	Message  string
}

// AdminRoleChecker answers the read-only sole-administrator question.
type AdminRoleChecker interface {
	CheckAdminRoles(ctx context.Context, userID uuid.UUID) (AdminRoleCheck, error)
}

// DependencyCleaner removes every record a service holds for a user.
// Deleting already-absent dependencies must succeed.
type DependencyCleaner interface {
	DeleteDependencies(ctx context.Context, userID uuid.UUID) error
}

var (
	_ AdminRoleChecker  = (*Client)(nil)
	_ DependencyCleaner = (*Client)(nil)
)

// envelope is the generic response body of every downstream service.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RemoteError is a non-2xx answer or a transport failure from a downstream service.
// StatusCode is 0 when no response was received.
type RemoteError struct {
	Service    Service
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s service %s: %v", e.Service, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s service %s: status %d: %s", e.Service, e.Operation, e.StatusCode, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Client talks to one downstream service.
type Client struct {
	service    Service
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient builds a client for service rooted at baseURL. Every request is
// bounded by timeout.
func NewClient(service Service, baseURL string, timeout time.Duration, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid %s service base URL %q: %w", service, baseURL, err)
	}
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With(slog.String("remote_service", string(service))),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Service() Service {
	return c.service
}

func (c *Client) userURL(userID uuid.UUID, suffix string) string {
	return fmt.Sprintf("%s/api/%s/user/%s/%s", c.baseURL, c.service.resource(), userID, suffix)
}

// CheckAdminRoles asks whether userID is the sole administrator of any resource
// the service owns. success=false in the envelope means blocking.
func (c *Client) CheckAdminRoles(ctx context.Context, userID uuid.UUID) (AdminRoleCheck, error) {
	const op = "check_admin_roles"
	ctx, span := c.startSpan(ctx, "CheckAdminRoles", userID)
	defer span.End()

	resp, err := c.do(ctx, http.MethodGet, c.userURL(userID, "admin-roles"), op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return AdminRoleCheck{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&env); err != nil {
		rerr := &RemoteError{Service: c.service, Operation: op, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decode response: %w", err)}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, "bad response body")
		return AdminRoleCheck{}, rerr
	}

	check := AdminRoleCheck{Blocking: !env.Success, Message: env.Message}
	span.SetAttributes(attribute.Bool("admin_roles.blocking", check.Blocking))
	span.SetStatus(codes.Ok, "checked")
	return check, nil
}

// DeleteDependencies removes every record the service holds for userID.
func (c *Client) DeleteDependencies(ctx context.Context, userID uuid.UUID) error {
	const op = "delete_dependencies"
	ctx, span := c.startSpan(ctx, "DeleteDependencies", userID)
	defer span.End()

	resp, err := c.do(ctx, http.MethodDelete, c.userURL(userID, "dependencies"), op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	c.logger.InfoContext(ctx, "Dependencies deleted", slog.String("userID", userID.String()))
	span.SetStatus(codes.Ok, "deleted")
	return nil
}

// do sends the request and turns transport failures and non-2xx answers into
// *RemoteError. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, target, op string) (*http.Response, error) {
	l := c.logger.With(slog.String("operation", op), slog.String("url", target))

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, &RemoteError{Service: c.service, Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		l.ErrorContext(ctx, "Remote call failed", slog.Any("error", err))
		c.record(ctx, op, "transport_error")
		return nil, &RemoteError{Service: c.service, Operation: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		l.ErrorContext(ctx, "Remote call returned error status",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		c.record(ctx, op, "http_error")
		return nil, &RemoteError{
			Service:    c.service,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	c.record(ctx, op, "ok")
	return resp, nil
}

func (c *Client) startSpan(ctx context.Context, name string, userID uuid.UUID) (context.Context, trace.Span) {
	return otel.Tracer("RemoteServiceClient").Start(ctx, name, trace.WithAttributes(
		attribute.String("remote.service", string(c.service)),
		attribute.String("user.id", userID.String()),
	))
}

func (c *Client) record(ctx context.Context, op, result string) {
	metrics.Get().RemoteCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", string(c.service)),
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}

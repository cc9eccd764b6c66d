package remote

import (
	"log/slog"

	"github.com/FACorreiaa/go-identity-service/config"
)

// Clients groups the three downstream services the identity service depends on.
type Clients struct {
	Organization *Client
	Project      *Client
	Task         *Client
}

func NewClients(cfg config.ServicesConfig, logger *slog.Logger, opts ...ClientOption) (*Clients, error) {
	org, err := NewClient(ServiceOrganization, cfg.Organization.BaseURL, cfg.Timeout, logger, opts...)
	if err != nil {
		return nil, err
	}
	project, err := NewClient(ServiceProject, cfg.Project.BaseURL, cfg.Timeout, logger, opts...)
	if err != nil {
		return nil, err
	}
	task, err := NewClient(ServiceTask, cfg.Task.BaseURL, cfg.Timeout, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Clients{Organization: org, Project: project, Task: task}, nil
}

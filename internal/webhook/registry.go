package webhook

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/vendwell/webhookd/internal/logging"
	"github.com/vendwell/webhookd/internal/signature"
)

// RegistryDefaults are applied to endpoint fields left unset at creation.
type RegistryDefaults struct {
	MaxRetries     int
	TimeoutSeconds int
}

// Registry owns endpoint configuration: validation, defaulting and secret
// provisioning. Ownership checks are the caller's responsibility; the
// registry trusts the owner scoping it is handed.
type Registry struct {
	store    Store
	defaults RegistryDefaults
	logger   *logging.Logger
}

func NewRegistry(store Store, defaults RegistryDefaults, logger *logging.Logger) *Registry {
	if defaults.MaxRetries <= 0 {
		defaults.MaxRetries = 3
	}
	if defaults.TimeoutSeconds <= 0 {
		defaults.TimeoutSeconds = 30
	}
	if logger == nil {
		logger = logging.New("webhookd")
	}
	return &Registry{store: store, defaults: defaults, logger: logger}
}

// validateURL rejects anything that is not an absolute http/https URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Create validates input, fills defaults, provisions a secret when none is
// supplied and persists the endpoint.
func (r *Registry) Create(ctx context.Context, in CreateEndpointInput) (*Endpoint, error) {
	if in.Name == "" || in.URL == "" || len(in.EventTypes) == 0 {
		return nil, fmt.Errorf("%w: name, url and event_types are required", ErrInvalid)
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" {
		var err error
		secret, err = signature.GenerateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	now := time.Now().UTC()
	ep := &Endpoint{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Description:     in.Description,
		URL:             in.URL,
		HTTPMethod:      in.HTTPMethod,
		Secret:          secret,
		ContentType:     in.ContentType,
		MaxRetries:      in.MaxRetries,
		TimeoutSeconds:  in.TimeoutSeconds,
		EventTypes:      in.EventTypes,
		Filters:         in.Filters,
		Headers:         in.Headers,
		AuthType:        in.AuthType,
		AuthCredentials: in.AuthCredentials,
		UserID:          in.UserID,
		VendorID:        in.VendorID,
		Status:          StatusActive,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if ep.HTTPMethod == "" {
		ep.HTTPMethod = "POST"
	}
	if ep.ContentType == "" {
		ep.ContentType = "application/json"
	}
	if ep.MaxRetries <= 0 {
		ep.MaxRetries = r.defaults.MaxRetries
	}
	if ep.TimeoutSeconds <= 0 {
		ep.TimeoutSeconds = r.defaults.TimeoutSeconds
	}

	if err := r.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	r.logger.WithContext(ctx).WithEndpoint(ep.ID).WithField("url", ep.URL).Info("endpoint created")
	return ep, nil
}

// Update applies a partial update; only supplied fields change. The URL is
// re-validated when it changes.
func (r *Registry) Update(ctx context.Context, id string, in UpdateEndpointInput) (*Endpoint, error) {
	ep, err := r.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.URL != nil && *in.URL != ep.URL {
		if err := validateURL(*in.URL); err != nil {
			return nil, err
		}
		ep.URL = *in.URL
	}
	if in.Name != nil {
		ep.Name = *in.Name
	}
	if in.Description != nil {
		ep.Description = *in.Description
	}
	if in.HTTPMethod != nil {
		ep.HTTPMethod = *in.HTTPMethod
	}
	if in.Secret != nil {
		ep.Secret = *in.Secret
	}
	if in.ContentType != nil {
		ep.ContentType = *in.ContentType
	}
	if in.MaxRetries != nil {
		ep.MaxRetries = *in.MaxRetries
	}
	if in.TimeoutSeconds != nil {
		ep.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.EventTypes != nil {
		ep.EventTypes = *in.EventTypes
	}
	if in.Filters != nil {
		ep.Filters = *in.Filters
	}
	if in.Headers != nil {
		ep.Headers = *in.Headers
	}
	if in.AuthType != nil {
		ep.AuthType = *in.AuthType
	}
	if in.AuthCredentials != nil {
		ep.AuthCredentials = *in.AuthCredentials
	}
	if in.Status != nil {
		ep.Status = *in.Status
	}
	if in.IsActive != nil {
		ep.IsActive = *in.IsActive
	}
	ep.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("update endpoint: %w", err)
	}
	return ep, nil
}

// Get returns one endpoint by id.
func (r *Registry) Get(ctx context.Context, id string) (*Endpoint, error) {
	return r.store.GetEndpoint(ctx, id)
}

// List returns endpoints matching the filter.
func (r *Registry) List(ctx context.Context, f EndpointFilter, limit, offset int) ([]*Endpoint, error) {
	return r.store.ListEndpoints(ctx, f, limit, offset)
}

// Delete hard-deletes the endpoint row. Historical deliveries and logs are
// kept for audit.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	r.logger.WithContext(ctx).WithEndpoint(id).Info("endpoint deleted")
	return nil
}

// RecordOutcome bumps the endpoint's rolling counters after an attempt.
// The store performs the increment atomically.
func (r *Registry) RecordOutcome(ctx context.Context, id string, success bool, at time.Time) error {
	return r.store.RecordEndpointOutcome(ctx, id, success, at)
}

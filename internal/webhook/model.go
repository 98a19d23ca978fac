package webhook

import "time"

// EndpointStatus is the administrative state of an endpoint.
type EndpointStatus string

const (
	StatusActive    EndpointStatus = "active"
	StatusSuspended EndpointStatus = "suspended"
	StatusInactive  EndpointStatus = "inactive"
)

// AuthType selects how auth headers are derived for an endpoint.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api_key"
)

// DeliveryStatus is the state of a delivery lineage.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Endpoint is a registered external HTTP receiver of webhook notifications.
// It receives deliveries only while IsActive is true AND Status is active.
type Endpoint struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	URL             string         `json:"url"`
	HTTPMethod      string         `json:"http_method"`
	Secret          string         `json:"secret,omitempty"`
	ContentType     string         `json:"content_type"`
	MaxRetries      int            `json:"max_retries"`
	TimeoutSeconds  int            `json:"timeout_seconds"`
	EventTypes      []string       `json:"event_types"`
	Filters         map[string]any `json:"filters,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	AuthType        AuthType       `json:"auth_type,omitempty"`
	AuthCredentials map[string]string `json:"auth_credentials,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	VendorID        string         `json:"vendor_id,omitempty"`
	Status          EndpointStatus `json:"status"`
	IsActive        bool           `json:"is_active"`
	SuccessCount    int64          `json:"success_count"`
	FailureCount    int64          `json:"failure_count"`
	LastSuccessAt   *time.Time     `json:"last_success_at,omitempty"`
	LastFailureAt   *time.Time     `json:"last_failure_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Deliverable reports whether the endpoint may receive deliveries.
func (e *Endpoint) Deliverable() bool {
	return e.IsActive && e.Status == StatusActive
}

// SubscribedTo reports whether the endpoint subscribes to eventType.
func (e *Endpoint) SubscribedTo(eventType string) bool {
	for _, t := range e.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// Event is an immutable fact to notify subscribers about. EventID is the
// caller-supplied idempotency key; receivers use it to deduplicate
// redelivered events.
type Event struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	EventID     string         `json:"event_id"`
	Payload     map[string]any `json:"payload"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	SourceID    string         `json:"source_id,omitempty"`
	SourceType  string         `json:"source_type,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	VendorID    string         `json:"vendor_id,omitempty"`
	IsProcessed bool           `json:"is_processed"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Delivery is one attempt lineage against one (endpoint, event) pair.
// NextRetryAt is set iff the last attempt failed with attempts remaining.
type Delivery struct {
	ID             string            `json:"id"`
	EndpointID     string            `json:"endpoint_id"`
	EventID        string            `json:"event_id"`
	AttemptNumber  int               `json:"attempt_number"`
	RequestURL     string            `json:"request_url"`
	RequestMethod  string            `json:"request_method"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	RequestBody    string            `json:"request_body,omitempty"`
	Status         DeliveryStatus    `json:"status"`
	ResponseStatus int               `json:"response_status,omitempty"`
	ResponseBody   string            `json:"response_body,omitempty"`
	ResponseTimeMs int64             `json:"response_time_ms,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AwaitingRetry reports whether the delivery failed with attempts remaining.
func (d *Delivery) AwaitingRetry() bool {
	return d.Status == DeliveryFailed && d.NextRetryAt != nil
}

// Terminal reports whether the delivery lineage is finished.
func (d *Delivery) Terminal() bool {
	return d.Status == DeliverySuccess || (d.Status == DeliveryFailed && d.NextRetryAt == nil)
}

// LogEntry is an append-only audit record of one endpoint interaction.
type LogEntry struct {
	ID         string         `json:"id"`
	EndpointID string         `json:"endpoint_id"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Stats is the read-side rollup exposed for operational visibility.
type Stats struct {
	ByStatus        map[string]int64 `json:"by_status"`
	TotalEndpoints  int64            `json:"total_endpoints"`
	TotalEvents     int64            `json:"total_events"`
	TotalDeliveries int64            `json:"total_deliveries"`
	SuccessRate     float64          `json:"success_rate"`
}

// CleanupResult reports how many rows a retention sweep removed.
type CleanupResult struct {
	DeletedEvents     int64 `json:"deleted_events"`
	DeletedDeliveries int64 `json:"deleted_deliveries"`
	DeletedLogs       int64 `json:"deleted_logs"`
}

// CreateEndpointInput carries the fields accepted at endpoint creation.
// Name, URL and EventTypes are required; everything else is defaulted.
type CreateEndpointInput struct {
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	URL             string            `json:"url"`
	HTTPMethod      string            `json:"http_method,omitempty"`
	Secret          string            `json:"secret,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	MaxRetries      int               `json:"max_retries,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds,omitempty"`
	EventTypes      []string          `json:"event_types"`
	Filters         map[string]any    `json:"filters,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	AuthType        AuthType          `json:"auth_type,omitempty"`
	AuthCredentials map[string]string `json:"auth_credentials,omitempty"`
	UserID          string            `json:"user_id,omitempty"`
	VendorID        string            `json:"vendor_id,omitempty"`
}

// UpdateEndpointInput carries a partial update; nil fields are left as-is.
type UpdateEndpointInput struct {
	Name            *string            `json:"name,omitempty"`
	Description     *string            `json:"description,omitempty"`
	URL             *string            `json:"url,omitempty"`
	HTTPMethod      *string            `json:"http_method,omitempty"`
	Secret          *string            `json:"secret,omitempty"`
	ContentType     *string            `json:"content_type,omitempty"`
	MaxRetries      *int               `json:"max_retries,omitempty"`
	TimeoutSeconds  *int               `json:"timeout_seconds,omitempty"`
	EventTypes      *[]string          `json:"event_types,omitempty"`
	Filters         *map[string]any    `json:"filters,omitempty"`
	Headers         *map[string]string `json:"headers,omitempty"`
	AuthType        *AuthType          `json:"auth_type,omitempty"`
	AuthCredentials *map[string]string `json:"auth_credentials,omitempty"`
	Status          *EndpointStatus    `json:"status,omitempty"`
	IsActive        *bool              `json:"is_active,omitempty"`
}

// DispatchInput carries the fields accepted at event dispatch.
// EventType, EventID and Payload are required.
type DispatchInput struct {
	EventType  string         `json:"event_type"`
	EventID    string         `json:"event_id"`
	Payload    map[string]any `json:"payload"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SourceID   string         `json:"source_id,omitempty"`
	SourceType string         `json:"source_type,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	VendorID   string         `json:"vendor_id,omitempty"`
}

// EndpointFilter narrows endpoint listings. Ownership scoping is supplied
// by the caller; the registry trusts it (authorization is enforced by the
// surrounding application layer).
type EndpointFilter struct {
	Status    EndpointStatus
	EventType string
	IsActive  *bool
	UserID    string
	VendorID  string
}

// EventFilter narrows event listings.
type EventFilter struct {
	EventType   string
	SourceType  string
	UserID      string
	VendorID    string
	IsProcessed *bool
}

// DeliveryFilter narrows delivery listings.
type DeliveryFilter struct {
	EndpointID string
	EventID    string
	Status     DeliveryStatus
}

// Package storage is the system-of-record Postgres access layer: it owns
// Application, EventType, Event, Subscription, AuthenticationConfig and
// RequestAttempt/Response persistence, plus the C6 request-attempt
// scheduler built on SELECT ... FOR UPDATE SKIP LOCKED.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by the storage layer; HTTP-facing packages map
// these onto the canonical ingestion/signature error kinds from the spec.
var (
	ErrNotFound            = errors.New("storage: not found")
	ErrEventAlreadyIngested = errors.New("storage: event already ingested")
	ErrAuthConfigExists     = errors.New("storage: an authentication config already exists for this scope")
)

// Application is the tenant container.
type Application struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	DeletedAt sql.NullTime
}

// EventType is an immutable "service.resource.verb" triple, unique per application.
type EventType struct {
	ApplicationID uuid.UUID
	Name          string // service.resource.verb
	CreatedAt     time.Time
}

// Event is one external occurrence submitted to the API.
type Event struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	EventTypeName string
	OccurredAt    time.Time
	ReceivedAt    time.Time
	Payload       []byte
	ContentType   string
	Metadata      map[string]string
	Labels        map[string]string
}

// Subscription is a delivery rule binding event types + labels to a target,
// auth and a signing secret.
type Subscription struct {
	ID                 uuid.UUID
	ApplicationID       uuid.UUID
	Description         string
	Enabled             bool
	PausedByQuota       bool // reserved for an external quota system, see SPEC_FULL.md §9 decision 3
	EventTypes          []string
	Labels              map[string]string
	TargetURL           string
	TargetMethod        string
	TargetHeaders       map[string]string
	Secret              uuid.UUID
	ConsecutiveFailures int
	LastSuccessAt       sql.NullTime
	CreatedAt           time.Time
}

// AuthKind identifies the variant of AuthenticationConfig.
type AuthKind string

const (
	AuthKindOAuth2      AuthKind = "oauth2"
	AuthKindBearer      AuthKind = "bearer"
	AuthKindBasic       AuthKind = "basic"
	AuthKindCertificate AuthKind = "certificate"
	AuthKindCustom      AuthKind = "custom"
)

// GrantType enumerates the OAuth2 grant types this system executes.
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantPassword          GrantType = "password"
)

// AuthenticationConfig is the variant-typed auth configuration attached to
// an application or a specific subscription within it.
type AuthenticationConfig struct {
	ID             uuid.UUID
	ApplicationID  uuid.UUID
	SubscriptionID uuid.NullUUID // null => application-scoped default
	Kind           AuthKind

	// OAuth2
	GrantType             GrantType
	ClientID              string
	ClientSecretRef        string // secret reference, resolved via internal/secrets
	TokenEndpoint          string
	Scopes                []string
	RefreshThresholdSec    int

	// Bearer
	TokenRef   string
	HeaderName string
	Prefix     string

	// Basic
	Username    string
	PasswordRef string

	// Certificate
	ClientCertRef  string
	ClientKeyRef   string
	CACertRef      string
	VerifyHostname bool
	MTLS           bool

	// Custom
	Headers     map[string]string
	QueryParams map[string]string
}

// ApplicationSecret is a bearer token authorising ingestion into an
// application, identified by a public key id and verified against a
// bcrypt hash of the private secret half (see internal/ingestion).
type ApplicationSecret struct {
	KeyID         string
	ApplicationID uuid.UUID
	SecretHash    string
	Name          string
	CreatedAt     time.Time
	RevokedAt     sql.NullTime
}

// OAuthTokenCache holds the cached access/refresh token for an
// AuthenticationConfig with a refreshable grant.
type OAuthTokenCache struct {
	AuthConfigID uuid.UUID
	AccessToken  string
	RefreshToken sql.NullString
	ExpiresAt    time.Time
	Scopes       []string
}

// RequestAttempt is one delivery try for one (event, subscription) pair.
type RequestAttempt struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	SubscriptionID uuid.UUID
	CreatedAt      time.Time
	PickedAt       sql.NullTime
	FailedAt       sql.NullTime
	SucceededAt    sql.NullTime
	DelayUntil     sql.NullTime
	ResponseID     uuid.NullUUID
	RetryCount     uint16
}

// Response is the captured outcome of a request attempt.
type Response struct {
	ID              uuid.UUID
	ErrorName       sql.NullString
	HTTPStatus      sql.NullInt32 // holds a u16 status code
	Headers         map[string]string
	Body            string
	ElapsedTimeMs   int64
	ObjectStoreKey  sql.NullString // set when the body was offloaded, see internal/objectstore
	ObjectStoreSize sql.NullInt64
}

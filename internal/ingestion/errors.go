package ingestion

import "errors"

// Sentinel errors for the C4 ingestion contract, mapped onto HTTP status
// codes by the handler (all 400 except EventAlreadyIngested at 409).
var (
	ErrInvalidPayloadContentType = errors.New("ingestion: content type is not allow-listed for this application")
	ErrInvalidBase64Payload      = errors.New("ingestion: payload does not base64-decode")
	ErrInvalidMetadata           = errors.New("ingestion: metadata must be a string-valued map")
	ErrInvalidLabels             = errors.New("ingestion: labels must be a string-valued map")
	ErrApplicationNameMissing    = errors.New("ingestion: application name is required")

	ErrInvalidAPIKeyFormat = errors.New("ingestion: malformed application secret")
	ErrInvalidAPIKey       = errors.New("ingestion: application secret does not match")
	ErrAPIKeyRevoked       = errors.New("ingestion: application secret has been revoked")
)

package webhook

import "errors"

// Store errors.
var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
)

// Secret sealing errors.
var (
	ErrMissingEncryptionKey = errors.New("webhook encryption key not configured")
	ErrSealedSecret         = errors.New("sealed webhook secret is malformed")
)

// Target URL errors. Handlers return their text to the doctor as is.
var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrInvalidScheme    = errors.New("only HTTPS allowed")
	ErrEmptyHost        = errors.New("URL must have a host")
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	ErrPrivateIP        = errors.New("private IP addresses not allowed")
	ErrInvalidPort      = errors.New("only port 443 allowed")
)

// Signature verification errors, for receivers.
var (
	ErrMalformedSignature   = errors.New("malformed signature header")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
)

// permanentFailure marks a delivery that must not be retried, such as one
// whose endpoint was deleted.
type permanentFailure struct{ reason string }

func (p permanentFailure) Error() string { return p.reason }

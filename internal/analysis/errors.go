package analysis

import (
	"errors"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/erosion-api/internal/resilience"
	"github.com/sells-group/erosion-api/pkg/rusle"
)

// Kind is the stable error identifier returned to clients.
type Kind string

// Error kinds.
const (
	KindStructuralInput   Kind = "StructuralInputError"
	KindPolygonValidation Kind = "PolygonValidationError"
	KindRegionConversion  Kind = "RegionConversionError"
	KindRequiredTimeout   Kind = "RequiredServiceTimeout"
	KindRequiredService   Kind = "RequiredServiceError"
	KindInternalAssembly  Kind = "InternalAssemblyError"
	KindRateLimited       Kind = "RateLimited"
	KindNotFound          Kind = "NotFound"
)

// HTTPStatus maps the kind to a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindStructuralInput:
		return http.StatusUnprocessableEntity
	case KindPolygonValidation, KindRegionConversion:
		return http.StatusBadRequest
	case KindRequiredTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a request failure with a client-facing kind and message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// AsError extracts an *Error from err's chain. Any other error is reported
// as an internal assembly failure.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return NewError(KindInternalAssembly, "Internal server error", err)
}

// requiredFailure classifies a failed required call.
func requiredFailure(service string, err error) *Error {
	if isTimeout(err) {
		return NewError(KindRequiredTimeout, service+" timed out: "+err.Error(), err)
	}
	return NewError(KindRequiredService, service+" failed: "+err.Error(), err)
}

func isTimeout(err error) bool {
	return eris.Is(err, rusle.ErrTimeout) || resilience.IsTimeout(err)
}

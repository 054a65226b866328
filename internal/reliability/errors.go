package reliability

import "errors"

// Persistence error classes. Stores wrap their backend errors with one of
// these sentinels so callers can classify with errors.Is.
var (
	// ErrConnection covers failures reaching the backend (dial, pool, broken pipe).
	ErrConnection = errors.New("persistence: connection error")
	// ErrTimeout covers deadline and cancellation failures on a backend call.
	ErrTimeout = errors.New("persistence: timeout")
	// ErrOperation covers generic operation failures the backend reports.
	ErrOperation = errors.New("persistence: operation failed")
	// ErrDuplicateKey signals a unique-constraint violation. It is a valid
	// outcome ("already stored"), never retried.
	ErrDuplicateKey = errors.New("persistence: duplicate key")
	// ErrNotFound signals an absent document.
	ErrNotFound = errors.New("persistence: not found")

	// ErrValidation covers bad caller input (missing session id, missing key).
	ErrValidation = errors.New("validation failed")
	// ErrAuthorization covers rejected credentials on privileged operations.
	ErrAuthorization = errors.New("authorization failed")
)

// IsRetryable classifies errors worth another attempt. Duplicate keys,
// missing documents and caller mistakes are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrOperation)
}

package travel

import "errors"

var (
	// ErrEmptyInput is returned by GetTravelTimeMatrix when given no POIs.
	ErrEmptyInput = errors.New("travel: empty input")
	// ErrHTTP indicates a non-2xx response from the routing service.
	ErrHTTP = errors.New("travel: http error")
	// ErrNetwork indicates a transport-level failure reaching the service.
	ErrNetwork = errors.New("travel: network error")
	// ErrTimeout indicates the configured timeout elapsed before a response.
	ErrTimeout = errors.New("travel: timeout")
	// ErrParse indicates the response body could not be decoded.
	ErrParse = errors.New("travel: parse error")
	// ErrService indicates a well-formed error response from the service.
	ErrService = errors.New("travel: service error")
)

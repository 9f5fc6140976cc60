package httpx

import "errors"

// errMissingHeader is returned by header-parsing helpers when a required
// header is absent or malformed.
var errMissingHeader = errors.New("httpx: missing or invalid header")

// Package conversion is the HTTP client for the optional server-side
// conversion path: upload an artifact, request a conversion task, and poll
// the task until it completes or fails.
//
// Errors carry services markers: transport failures are ErrUploadFailed,
// non-2xx responses are ErrUploadFailed or ErrConversionFailed depending on
// the call, and 401/403 are always ErrPermissionDenied.
package conversion

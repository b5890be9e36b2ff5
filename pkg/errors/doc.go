// Package errors provides structured error handling with error codes for the identity core.
//
// Every failure surfaced by the services carries a stable ErrorCode, a human-readable
// message, an optional problem detail key (Reason) and the offending identifiers in
// Details, so a presentation layer can render a specific message without re-deriving
// context.
//
// # Basic Usage
//
//	err := errors.UserNotFound("alice")
//	err := errors.DuplicateName("user", "alice")
//	err := errors.RoleNotFound("editor")
//	err := errors.Wrap(storeErr, errors.ErrCodeConcurrentModification, "failed to update user")
//
// # Error Inspection
//
//	if errors.IsCode(err, errors.ErrCodeConcurrentModification) {
//		// safe to retry
//	}
//
//	code := errors.GetCode(err)
//	role, _ := errors.GetDetails(err)["role"].(string)
//
// Error code to HTTP status mapping:
//   - ErrCodeInvalidInput, ErrCodeRoleNotFound → 400 Bad Request
//   - ErrCodeAccessDenied → 403 Forbidden
//   - ErrCodeNotFound, ErrCodeUserNotFound → 404 Not Found
//   - ErrCodeDuplicateName, ErrCodeConcurrentModification → 409 Conflict
//   - everything else → 500 Internal Server Error
package errors

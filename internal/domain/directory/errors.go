package directory

import "personnel/internal/apperr"

var (
	ErrUserNotFound         = apperr.NotFound("user_not_found", "user not found")
	ErrUsernameTaken        = apperr.Conflict("username_taken", "username", "username already exists")
	ErrReservedUsername     = apperr.Conflict("username_reserved", "username", "username is reserved for the system administrator")
	ErrEmailTaken           = apperr.Conflict("email_taken", "email", "email already exists")
	ErrEmployeeIDTaken      = apperr.Conflict("employee_id_taken", "employeeId", "employee id is already taken")
	ErrEmployeeIDsExhausted = apperr.Conflict("employee_ids_exhausted", "employeeId", "no free employee id left below 99999")
	ErrAllocationContention = apperr.Conflict("employee_id_contention", "employeeId", "could not allocate a unique employee id, please retry")
	ErrProtectedExists      = apperr.Conflict("protected_account_exists", "", "a protected account already exists")
	ErrInvalidEmployeeID    = apperr.Validation("invalid_employee_id", "employeeId", "employee id must be exactly five digits")
	ErrInvalidEmail         = apperr.Validation("invalid_email", "email", "email address is invalid")
	ErrInvalidRole          = apperr.Validation("invalid_role", "roles", "roles must be a non-empty subset of admin, employee, manager")
	ErrInvalidStatus        = apperr.Validation("invalid_status", "status", "status must be one of active, inactive, leave, parental-leave")
	ErrMissingFields        = apperr.Validation("missing_fields", "", "username, password, firstName, lastName and email are required")
	ErrProtectedAccount     = apperr.Validation("protected_account", "", "the system administrator account cannot be deleted")
)

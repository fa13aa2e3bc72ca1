package auth

import "personnel/internal/apperr"

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials  = apperr.Unauthorized("invalid_credentials", "invalid credentials")
	ErrCredentialsRequired = apperr.Validation("credentials_required", "", "username and password are required")
	ErrMissingToken        = apperr.Unauthorized("missing_token", "authentication required")
	ErrInvalidToken        = apperr.Unauthorized("invalid_token", "token is invalid or expired")
	ErrForbidden           = apperr.Forbidden("forbidden", "admin role required")
	ErrWrongPassword       = apperr.Validation("wrong_password", "currentPassword", "current password is incorrect")
	ErrWeakPassword        = apperr.Validation("weak_password", "newPassword", "password must be at least 8 characters and contain upper case, lower case and a digit")
	ErrPasswordTooLong     = apperr.Validation("password_too_long", "password", "password must not exceed 72 bytes")
	ErrResetUnavailable    = apperr.Unavailable("reset_delivery_unavailable", "no delivery channel is configured for reset passwords")
	ErrResetDeliveryFailed = apperr.Unavailable("reset_delivery_failed", "the new password could not be delivered, the previous password is still valid")
)

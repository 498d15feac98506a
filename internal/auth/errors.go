package auth

import (
	"net/http"

	"github.com/edustack/edustack/internal/apperror"
)

// Domain error constructors. Every failure mode of the auth core has a
// stable machine-readable type; handlers and tests match on Type while
// clients only ever see Code and Message.

func errDuplicateEmail() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "duplicate_email", "An account with this email already exists")
}

func errTokenInvalid() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "token_invalid", "Token is not valid")
}

func errTokenExpired() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "token_expired", "Token has expired")
}

func errActivationCodeMismatch() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "activation_code_mismatch", "Activation code is invalid")
}

func errSessionNotFound() *apperror.AppError {
	return apperror.New(http.StatusUnauthorized, "session_not_found", "Session has expired, please log in again")
}

func errSessionCorrupted() *apperror.AppError {
	return apperror.New(http.StatusUnauthorized, "session_corrupted", "Session could not be restored, please log in again")
}

func errSocialAccountNoPassword() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "social_account_no_password", "Social accounts have no password to change")
}

func errPasswordMismatch() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "password_mismatch", "Old password is incorrect")
}

func errPasswordUnchanged() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "password_unchanged", "New password must differ from the old one")
}

func errInvalidCredentials() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "invalid_credentials", "Invalid email or password")
}

func errUnauthenticated() *apperror.AppError {
	return apperror.New(http.StatusUnauthorized, "unauthenticated", "Please log in to access this resource")
}

func errForbidden(role string) *apperror.AppError {
	if role == "" {
		role = "unknown"
	}
	return apperror.New(http.StatusForbidden, "forbidden", "Role: "+role+" is not allowed to access this resource")
}

func errMailDeliveryFailed() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "mail_delivery_failed", "Could not send the activation email, please try again")
}

func errImageUploadFailed() *apperror.AppError {
	return apperror.New(http.StatusBadRequest, "image_upload_failed", "Could not process the uploaded image")
}

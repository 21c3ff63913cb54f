package apierr

import (
	"errors"
	"fmt"
)

// StatusMessage maps an HTTP status to text a user can act on.
func StatusMessage(status int) string {
	switch status {
	case 400:
		return "Invalid request. Check the data you entered."
	case 401:
		return "Not authorized. Please log in again."
	case 403:
		return "Access denied. You are not allowed to do this."
	case 404:
		return "Resource not found."
	case 409:
		return "Conflict: the user or resource already exists."
	case 422:
		return "Invalid data. Check the format of the fields."
	case 500:
		return "Server error. Try again later."
	case 502, 503, 504:
		return "The server is unavailable. Try again later."
	default:
		return fmt.Sprintf("An unknown error occurred (%d).", status)
	}
}

// Message renders err for the error slot and for the shell.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var (
		v *ValidationError
		s *ServerError
		n *NetworkError
	)
	switch {
	case errors.As(err, &v):
		return v.Reason
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrUserExists):
		return "A user with that email already exists."
	case errors.Is(err, ErrUnauthorized):
		return StatusMessage(401)
	case errors.As(err, &s):
		return StatusMessage(s.Status)
	case errors.As(err, &n):
		return "Could not reach the server. Check your connection."
	default:
		return err.Error()
	}
}

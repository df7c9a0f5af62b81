package model

import "errors"

var (
	// Authentication errors
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAuthExpired           = errors.New("session expired, please sign in again")
	ErrMalformedAuthResponse = errors.New("malformed auth response")
	ErrNotAuthenticated      = errors.New("not authenticated")

	// Infrastructure errors
	ErrPersistence        = errors.New("persistence failure")
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Tenant errors
	ErrAssociationNotFound = errors.New("association not found")

	// Sandbox errors
	ErrUserNotFound  = errors.New("user not found")
	ErrTokenNotFound = errors.New("token not found")
	ErrInvalidInput  = errors.New("invalid input")
)

// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// The first group mirrors services.Kind one to one, so an error coming out of
// a service renders with the same code over HTTP and over the WebSocket.
// The second group covers failures that happen before a service is reached.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "conflict: personal conversation already exists"
//	}
package handlers

import (
	"net/http"

	"github.com/tbourn/go-realtime-chat/internal/services"
)

const (
	ErrCodeUnauthenticated = string(services.KindUnauthenticated)
	ErrCodeForbidden       = string(services.KindForbidden)
	ErrCodeNotFound        = string(services.KindNotFound)
	ErrCodeConflict        = string(services.KindConflict)
	ErrCodeValidation      = string(services.KindValidation)
	ErrCodeForgery         = string(services.KindForgery)
	ErrCodeInternal        = string(services.KindInternal)

	// Transport-level:
	ErrCodeBadRequest       = "bad_request"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(k services.Kind) int {
	switch k {
	case services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindForbidden, services.KindForgery:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

package errors

import (
	"context"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for request correlation ID.
	RequestIDKey contextKey = "requestId"
	// ProductionModeKey is the context key for production mode flag.
	ProductionModeKey contextKey = "productionMode"
)

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// IsProductionMode checks if running in production mode.
func IsProductionMode(ctx context.Context) bool {
	if prod, ok := ctx.Value(ProductionModeKey).(bool); ok {
		return prod
	}
	return false
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithProductionMode sets the production mode flag in context.
func WithProductionMode(ctx context.Context, production bool) context.Context {
	return context.WithValue(ctx, ProductionModeKey, production)
}

// Presented is the JSON shape every portal HTTP error response takes.
// The message is deliberately generic for authorization/RADIUS failures —
// spec.md §7 forbids user enumeration through distinct error text.
type Presented struct {
	Code      string `json:"code"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// genericMessages overrides an error's message with a non-enumerating
// generic one for categories where spec.md §7 requires it.
var genericMessages = map[string]string{
	CodeBadCredentials:     "Authentication failed",
	CodeRadiusAccessReject: "Authentication failed",
	CodeRouterNotFound:     "Authentication failed",
	CodeRateLimited:        "Too many attempts, try again later",
}

// Present converts err into the response body and status code the portal
// pipeline returns to the hotspot client.
func Present(ctx context.Context, err error) (int, Presented) {
	requestID := GetRequestID(ctx)

	se, ok := As(err)
	if !ok {
		msg := "internal error"
		if !IsProductionMode(ctx) {
			msg = err.Error()
		}
		return 500, Presented{Code: "I500", Category: string(CategoryCorrectness), Message: msg, RequestID: requestID}
	}

	message := se.Message
	if generic, found := genericMessages[se.Code]; found {
		message = generic
	}

	return HTTPStatus(err), Presented{
		Code:      se.Code,
		Category:  string(se.Category),
		Message:   message,
		RequestID: requestID,
	}
}

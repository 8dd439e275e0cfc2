package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

type requestIDKey struct{}

// WithRequestID tags ctx with the HTTP request ID so campaign logs can be
// correlated with the request that created them.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey{}).(string)
	return requestID, ok && requestID != ""
}

func loggerFor(ctx context.Context, log logrus.FieldLogger) logrus.FieldLogger {
	if requestID, ok := RequestIDFromContext(ctx); ok {
		return log.WithField("request_id", requestID)
	}
	return log
}

package audit

import "context"

type requestIDKey struct{}

// WithRequestID attaches a request identifier to the context so that
// generation calls made on behalf of one API request share an ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request identifier from ctx, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

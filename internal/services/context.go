package services

import "context"

// ctxKey is unexported so only this package can set the values below.
type ctxKey uint8

const (
	keyAgreement ctxKey = iota + 1
	keyDaemon
	keyRequest
)

func with(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key ctxKey) (string, bool) {
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

// WithAgreementID tags ctx with the agreement a log line or request concerns.
func WithAgreementID(ctx context.Context, id string) context.Context {
	return with(ctx, keyAgreement, id)
}

// AgreementIDFromContext returns the agreement set by WithAgreementID.
func AgreementIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, keyAgreement) }

// WithDaemon tags ctx with the managed daemon, "yagna" or "provider".
func WithDaemon(ctx context.Context, name string) context.Context {
	return with(ctx, keyDaemon, name)
}

// DaemonFromContext returns the daemon set by WithDaemon.
func DaemonFromContext(ctx context.Context) (string, bool) { return lookup(ctx, keyDaemon) }

// WithRequestID tags ctx with an IPC or HTTP correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, keyRequest, id)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, keyRequest) }

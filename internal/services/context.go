package services

import "context"

type contextKey string

const (
	jobGUIDKey   contextKey = "job_guid"
	pairKey      contextKey = "lang_pair"
	channelKey   contextKey = "channel"
	requestIDKey contextKey = "request_id"
)

// WithJobGUID annotates context with the job identifier being processed.
func WithJobGUID(ctx context.Context, guid string) context.Context {
	if guid == "" {
		return ctx
	}
	return context.WithValue(ctx, jobGUIDKey, guid)
}

// JobGUIDFromContext extracts the job identifier if present.
func JobGUIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobGUIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPair annotates context with a language pair label such as "en-US>fr".
func WithPair(ctx context.Context, pair string) context.Context {
	if pair == "" {
		return ctx
	}
	return context.WithValue(ctx, pairKey, pair)
}

// PairFromContext returns the language pair label if present.
func PairFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(pairKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithChannel annotates context with the content channel identifier.
func WithChannel(ctx context.Context, channel string) context.Context {
	if channel == "" {
		return ctx
	}
	return context.WithValue(ctx, channelKey, channel)
}

// ChannelFromContext returns the channel identifier if present.
func ChannelFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(channelKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

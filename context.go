package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is recorded
// on sessions and trusted devices and included in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for session
// and trusted-device records.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceID attaches the client-supplied device fingerprint to ctx.
// Login uses it to check trusted-device second-factor bypass.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey{}, deviceID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func deviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	deviceID, _ := ctx.Value(deviceIDContextKey{}).(string)
	return deviceID
}

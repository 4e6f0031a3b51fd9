// Package authcore is the authentication, session and trust core for
// the LuminaCare platform: password login with second-factor
// challenges, JWT access/refresh token lifecycle, trusted-device
// bypass, and role-based permission resolution.
//
// The Engine is built once and shared:
//
//	engine, err := authcore.New().
//		WithRedis(&redis.Options{Addr: "localhost:6379"}).
//		WithUserDirectory(directory).
//		WithNotifier(smsGateway).
//		Build()
//
// User records, delivery transports and HTTP routing live outside the
// core; it consumes them through the UserDirectory and Notifier
// interfaces and the session.Store adapter.
package authcore

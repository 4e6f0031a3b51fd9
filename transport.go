package authcore

import (
	"net/http"
	"strings"
	"time"
)

// SetAuthCookies writes both credentials as http-only, same-site-strict
// cookies with max-ages derived from each token's own expiry. The
// access token additionally travels as a Bearer header on API calls;
// the cookie form serves browser navigation.
func (e *Engine) SetAuthCookies(w http.ResponseWriter, pair *TokenPair) {
	if pair == nil {
		return
	}
	cookie := e.cfg.Cookie

	// Non-cookie clients read the access token from the header instead.
	w.Header().Set("Authorization", "Bearer "+pair.AccessToken)

	http.SetCookie(w, &http.Cookie{
		Name:     cookie.AccessName,
		Value:    pair.AccessToken,
		Path:     cookie.Path,
		Domain:   cookie.Domain,
		MaxAge:   cookieMaxAge(pair.AccessExpiresAt),
		Secure:   cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     cookie.RefreshName,
		Value:    pair.RefreshToken,
		Path:     cookie.Path,
		Domain:   cookie.Domain,
		MaxAge:   cookieMaxAge(pair.RefreshExpiresAt),
		Secure:   cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// RefreshAuthCookie rewrites only the access cookie after a renewal;
// the refresh cookie keeps its original absolute expiry.
func (e *Engine) RefreshAuthCookie(w http.ResponseWriter, renewal *AccessRenewal) {
	if renewal == nil {
		return
	}
	cookie := e.cfg.Cookie

	w.Header().Set("Authorization", "Bearer "+renewal.AccessToken)

	http.SetCookie(w, &http.Cookie{
		Name:     cookie.AccessName,
		Value:    renewal.AccessToken,
		Path:     cookie.Path,
		Domain:   cookie.Domain,
		MaxAge:   cookieMaxAge(renewal.AccessExpiresAt),
		Secure:   cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthCookies expires both credential cookies.
func (e *Engine) ClearAuthCookies(w http.ResponseWriter) {
	cookie := e.cfg.Cookie
	for _, name := range []string{cookie.AccessName, cookie.RefreshName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     cookie.Path,
			Domain:   cookie.Domain,
			MaxAge:   -1,
			Secure:   cookie.Secure,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// BearerFromRequest extracts the access token: Authorization header
// first, access cookie as the fallback. Empty when neither is present.
func (e *Engine) BearerFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if tok, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if c, err := r.Cookie(e.cfg.Cookie.AccessName); err == nil {
		return c.Value
	}
	return ""
}

// RefreshTokenFromRequest extracts the refresh token from its cookie.
func (e *Engine) RefreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(e.cfg.Cookie.RefreshName); err == nil {
		return c.Value
	}
	return ""
}

func cookieMaxAge(expiresAt time.Time) int {
	remaining := int(time.Until(expiresAt).Seconds())
	if remaining < 1 {
		remaining = 1
	}
	return remaining
}

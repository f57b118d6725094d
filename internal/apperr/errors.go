// Package apperr defines the typed errors that cross component boundaries.
//
// Every failure surfaced by the vault, the quota tracker, the enrichment
// router or the listing builder is an *Error with a stable Kind that callers
// can switch on, plus a human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind is the stable machine-readable classification of an Error.
type Kind string

const (
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindRateLimited       Kind = "rate_limited"
	KindCredentialMissing Kind = "credential_missing"
	KindCredentialFormat  Kind = "credential_format"
	KindDecryption        Kind = "decryption_failed"
	KindProviderCall      Kind = "provider_call_failed"
	KindConfiguration     Kind = "configuration"
	KindUnknownProvider   Kind = "unknown_provider"
	KindInvalidRequest    Kind = "invalid_request"
	KindImageUnavailable  Kind = "image_unavailable"
	KindStorage           Kind = "storage"
	KindNotFound          Kind = "not_found"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrQuotaExceeded     = &Error{Kind: KindQuotaExceeded}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrCredentialMissing = &Error{Kind: KindCredentialMissing}
	ErrCredentialFormat  = &Error{Kind: KindCredentialFormat}
	ErrDecryption        = &Error{Kind: KindDecryption}
	ErrProviderCall      = &Error{Kind: KindProviderCall}
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrUnknownProvider   = &Error{Kind: KindUnknownProvider}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrImageUnavailable  = &Error{Kind: KindImageUnavailable}
	ErrStorage           = &Error{Kind: KindStorage}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

// maxBodyExcerpt bounds the provider response body kept on an Error.
const maxBodyExcerpt = 512

// Error is the single structured error type of the service.
type Error struct {
	Kind     Kind
	Provider string
	Message  string

	// StatusCode and Body describe a failed provider call. StatusCode is 0
	// when no HTTP response was received (timeout, connection refused).
	StatusCode int
	Body       string

	// Used and Limit describe the quota state for quota and rate errors.
	Used  int
	Limit int

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func QuotaExceeded(provider string, used, limit int) *Error {
	return &Error{
		Kind:     KindQuotaExceeded,
		Provider: provider,
		Message:  fmt.Sprintf("daily quota exceeded for provider %s: %d of %d requests used", provider, used, limit),
		Used:     used,
		Limit:    limit,
	}
}

func RateLimited(provider string, limit int) *Error {
	return &Error{
		Kind:     KindRateLimited,
		Provider: provider,
		Message:  fmt.Sprintf("rate limit of %d requests per minute reached for provider %s", limit, provider),
		Limit:    limit,
	}
}

func CredentialMissing(userID, provider string) *Error {
	return &Error{
		Kind:     KindCredentialMissing,
		Provider: provider,
		Message:  fmt.Sprintf("no credential configured for provider %s (user %s)", provider, userID),
	}
}

func CredentialFormat(provider, reason string) *Error {
	return &Error{
		Kind:     KindCredentialFormat,
		Provider: provider,
		Message:  fmt.Sprintf("credential for provider %s rejected: %s", provider, reason),
	}
}

func Decryption(provider string, err error) *Error {
	return &Error{
		Kind:     KindDecryption,
		Provider: provider,
		Message:  fmt.Sprintf("stored credential for provider %s cannot be decrypted", provider),
		Err:      err,
	}
}

// ProviderCall wraps a failed backend round trip. The body is cut to a short
// excerpt so that large HTML error pages never travel further.
func ProviderCall(provider string, status int, body string, err error) *Error {
	body = excerpt(body, maxBodyExcerpt)
	msg := fmt.Sprintf("provider %s call failed", provider)
	if status != 0 {
		msg = fmt.Sprintf("provider %s returned status %d", provider, status)
	}
	return &Error{
		Kind:       KindProviderCall,
		Provider:   provider,
		Message:    msg,
		StatusCode: status,
		Body:       body,
		Err:        err,
	}
}

func Configuration(message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: err}
}

func UnknownProvider(provider string) *Error {
	return &Error{
		Kind:     KindUnknownProvider,
		Provider: provider,
		Message:  fmt.Sprintf("unknown provider %q", provider),
	}
}

func InvalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message}
}

func ImageUnavailable(ref string, err error) *Error {
	return &Error{
		Kind:    KindImageUnavailable,
		Message: fmt.Sprintf("image %q could not be loaded", ref),
		Err:     err,
	}
}

func Storage(operation string, err error) *Error {
	return &Error{
		Kind:    KindStorage,
		Message: fmt.Sprintf("storage failure during %s", operation),
		Err:     err,
	}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", what)}
}

// excerpt cuts s to at most max bytes without splitting a rune
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

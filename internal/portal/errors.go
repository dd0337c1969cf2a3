package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure means no authenticated session could be established.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrCaptchaFailure is an ErrAuthFailure caused by an unreadable or rejected captcha.
	ErrCaptchaFailure = fmt.Errorf("captcha not accepted: %w", ErrAuthFailure)
	// ErrSessionTokenUnavailable means every token discovery strategy came up empty.
	ErrSessionTokenUnavailable = errors.New("session token unavailable")
	// ErrNetwork means the in-page request never produced a response.
	ErrNetwork = errors.New("network failure")
	// ErrMalformedResponse means the response body was not valid JSON.
	ErrMalformedResponse = errors.New("malformed response")
)

const maxErrorBody = 500

// HttpError is returned when the portal answers with a non-200 status.
type HttpError struct {
	Status int
	// Body is truncated to the first 500 bytes.
	Body string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("portal responded with http %d: %s", e.Status, e.Body)
}

// ApiError is returned when the portal answers 200 with its error envelope.
type ApiError struct {
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("portal rejected request: %s", e.Message)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// avoid splitting a multi-byte rune
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

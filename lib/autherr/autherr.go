// Package autherr is the error taxonomy of the sign-in protocol. Every
// rejection carries a stable machine-readable code and an HTTP status. The
// underlying cause stays server side.
package autherr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Code is the machine-readable reason sent to clients in the "error" field.
type Code string

const (
	BadOrigin              Code = "BadOrigin"
	CsrfRequired           Code = "CsrfRequired"
	CsrfInvalid            Code = "CsrfInvalid"
	RateLimited            Code = "RateLimited"
	BadRequest             Code = "BadRequest"
	MethodNotAllowed       Code = "MethodNotAllowed"
	WalletRequired         Code = "WalletRequired"
	WalletInvalid          Code = "WalletInvalid"
	ChallengeRequired      Code = "ChallengeRequired"
	SignatureRequired      Code = "SignatureRequired"
	ChallengeInvalid       Code = "ChallengeInvalid"
	ChallengeExpired       Code = "ChallengeExpired"
	WalletOrOriginMismatch Code = "WalletOrOriginMismatch"
	ChallengeAlreadyUsed   Code = "ChallengeAlreadyUsed"
	ReplayStoreUnavailable Code = "ReplayStoreUnavailable"
	SignatureInvalid       Code = "SignatureInvalid"
	Unauthenticated        Code = "Unauthenticated"
	ServerMisconfigured    Code = "ServerMisconfigured"
	Internal               Code = "Internal"
)

var statuses = map[Code]int{
	BadOrigin:              http.StatusForbidden,
	CsrfRequired:           http.StatusForbidden,
	CsrfInvalid:            http.StatusForbidden,
	RateLimited:            http.StatusTooManyRequests,
	BadRequest:             http.StatusBadRequest,
	MethodNotAllowed:       http.StatusMethodNotAllowed,
	WalletRequired:         http.StatusBadRequest,
	WalletInvalid:          http.StatusBadRequest,
	ChallengeRequired:      http.StatusBadRequest,
	SignatureRequired:      http.StatusBadRequest,
	ChallengeInvalid:       http.StatusUnauthorized,
	ChallengeExpired:       http.StatusUnauthorized,
	WalletOrOriginMismatch: http.StatusUnauthorized,
	ChallengeAlreadyUsed:   http.StatusUnauthorized,
	ReplayStoreUnavailable: http.StatusServiceUnavailable,
	SignatureInvalid:       http.StatusUnauthorized,
	Unauthenticated:        http.StatusUnauthorized,
	ServerMisconfigured:    http.StatusInternalServerError,
	Internal:               http.StatusInternalServerError,
}

// Status returns the HTTP status for c. Unknown codes map to 500.
func (c Code) Status() int {
	if st, ok := statuses[c]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// Error is a rejection with a public code and a private cause.
type Error struct {
	Code  Code
	Cause error
}

// New wraps cause in an Error with the given code. cause may be nil.
func New(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("autherr: %s", e.Code)
	}
	return fmt.Sprintf("autherr: %s: %v", e.Code, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so errors.Is(err, autherr.New(X, nil))
// works without comparing causes.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// CodeOf extracts the code from err. Errors outside the taxonomy are Internal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return Internal
}

// Response is the JSON body of every rejection.
type Response struct {
	OK    bool `json:"ok"`
	Error Code `json:"error,omitempty"`
}

// Write renders err as {"ok":false,"error":"<code>"} with the matching status.
// Server-side failures are logged with their cause, client errors at debug.
func Write(w http.ResponseWriter, lg *slog.Logger, err error) {
	code := CodeOf(err)
	status := code.Status()

	if lg != nil {
		switch {
		case status >= http.StatusInternalServerError:
			lg.Error("request failed", "code", code, "err", err)
		default:
			lg.Debug("request rejected", "code", code, "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{OK: false, Error: code})
}

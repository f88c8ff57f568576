package autherr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatus(t *testing.T) {
	for _, tt := range []struct {
		code   Code
		status int
	}{
		{BadOrigin, http.StatusForbidden},
		{CsrfRequired, http.StatusForbidden},
		{CsrfInvalid, http.StatusForbidden},
		{RateLimited, http.StatusTooManyRequests},
		{WalletInvalid, http.StatusBadRequest},
		{ChallengeExpired, http.StatusUnauthorized},
		{ChallengeAlreadyUsed, http.StatusUnauthorized},
		{WalletOrOriginMismatch, http.StatusUnauthorized},
		{SignatureInvalid, http.StatusUnauthorized},
		{ReplayStoreUnavailable, http.StatusServiceUnavailable},
		{ServerMisconfigured, http.StatusInternalServerError},
		{Code("taco"), http.StatusInternalServerError},
	} {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Status(); got != tt.status {
				t.Logf("want: %d", tt.status)
				t.Logf("got:  %d", got)
				t.Error("wrong status")
			}
		})
	}
}

func TestErrorsIs(t *testing.T) {
	cause := errors.New("store exploded")
	err := fmt.Errorf("login: %w", New(ReplayStoreUnavailable, cause))

	if !errors.Is(err, New(ReplayStoreUnavailable, nil)) {
		t.Error("wrapped error does not match its code")
	}

	if errors.Is(err, New(ChallengeAlreadyUsed, nil)) {
		t.Error("wrapped error matches the wrong code")
	}

	if !errors.Is(err, cause) {
		t.Error("cause is not reachable through Unwrap")
	}

	if got := CodeOf(err); got != ReplayStoreUnavailable {
		t.Errorf("CodeOf returned %s", got)
	}

	if got := CodeOf(cause); got != Internal {
		t.Errorf("CodeOf a foreign error returned %s", got)
	}
}

func TestWrite(t *testing.T) {
	rw := httptest.NewRecorder()
	Write(rw, nil, New(SignatureInvalid, errors.New("secret detail")))

	resp := rw.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong status: %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}

	if body["ok"] != false || body["error"] != "SignatureInvalid" {
		t.Errorf("wrong body: %v", body)
	}

	if len(body) != 2 {
		t.Errorf("body leaks extra fields: %v", body)
	}
}

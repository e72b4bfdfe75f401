package integration

import (
	"net/http"
	"testing"
)

func TestPasswordResetFlowRevokesSessions(t *testing.T) {
	notifier := &proofCaptureNotifier{}
	baseURL, client, closeFn := newTestServerWithOptions(t, testServerOptions{notifier: notifier})
	defer closeFn()

	registerVerifiedAndLogin(t, client, baseURL, notifier, "reset-flow@example.com", "Valid#Pass1234")

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/password/forgot", map[string]string{
		"email": "reset-flow@example.com",
	}, nil)
	if resp.StatusCode != http.StatusAccepted || !env.Success {
		t.Fatalf("forgot password failed: status=%d err=%#v", resp.StatusCode, env.Error)
	}

	token := notifier.LastResetToken()
	if token == "" {
		t.Fatal("expected a reset token to be delivered")
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/password/reset", map[string]string{
		"token":        token,
		"new_password": "Fresh#Pass5678",
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("reset password failed: status=%d err=%#v", resp.StatusCode, env.Error)
	}

	// The session from before the reset is gone.
	resp, _ = doJSON(t, client, http.MethodGet, baseURL+"/api/v1/me", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected pre-reset session to be revoked, got %d", resp.StatusCode)
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    "reset-flow@example.com",
		"password": "Valid#Pass1234",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("old password should be rejected, got status=%d err=%#v", resp.StatusCode, env.Error)
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    "reset-flow@example.com",
		"password": "Fresh#Pass5678",
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login with new password failed: status=%d err=%#v", resp.StatusCode, env.Error)
	}
}

func TestPasswordForgotAnswersUniformly(t *testing.T) {
	notifier := &proofCaptureNotifier{}
	baseURL, client, closeFn := newTestServerWithOptions(t, testServerOptions{notifier: notifier})
	defer closeFn()

	registerVerified(t, client, baseURL, notifier, "uniform@example.com", "Valid#Pass1234")

	for _, email := range []string{"uniform@example.com", "nobody@example.com"} {
		resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/password/forgot", map[string]string{
			"email": email,
		}, nil)
		if resp.StatusCode != http.StatusAccepted || !env.Success {
			t.Fatalf("forgot %s: expected uniform 202, got status=%d err=%#v", email, resp.StatusCode, env.Error)
		}
	}
}

func TestPasswordResetRejectsGarbageToken(t *testing.T) {
	baseURL, client, closeFn := newTestServer(t)
	defer closeFn()

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/password/reset", map[string]string{
		"token":        "not-a-real-token",
		"new_password": "Fresh#Pass5678",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_PROOF" {
		t.Fatalf("expected 400 INVALID_PROOF, got status=%d err=%#v", resp.StatusCode, env.Error)
	}
}

func TestChangePasswordRotatesCredential(t *testing.T) {
	notifier := &proofCaptureNotifier{}
	baseURL, client, closeFn := newTestServerWithOptions(t, testServerOptions{notifier: notifier})
	defer closeFn()

	registerVerifiedAndLogin(t, client, baseURL, notifier, "change-pass@example.com", "Valid#Pass1234")
	csrf := cookieValue(t, client, baseURL, "csrf_token")

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/password/change", map[string]string{
		"current_password": "Valid#Pass1234",
		"new_password":     "Rotated#Pass5678",
	}, map[string]string{"X-CSRF-Token": csrf})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("change password failed: status=%d err=%#v", resp.StatusCode, env.Error)
	}
	assertClearingCookie(t, resp, "access_token")

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    "change-pass@example.com",
		"password": "Rotated#Pass5678",
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login with rotated password failed: status=%d err=%#v", resp.StatusCode, env.Error)
	}
}

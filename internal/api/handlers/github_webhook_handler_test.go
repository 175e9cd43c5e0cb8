package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gh "github.com/google/go-github/v58/github"
)

type fakeWebhooks struct {
	events []*gh.InstallationEvent
}

func (f *fakeWebhooks) HandleWebhookEvent(_ context.Context, event *gh.InstallationEvent) error {
	f.events = append(f.events, event)
	return nil
}

// endlessBody yields zero bytes forever and counts how many were read.
type endlessBody struct {
	read int64
}

func (b *endlessBody) Read(p []byte) (int, error) {
	clear(p)
	b.read += int64(len(p))
	return len(p), nil
}

func signedRequest(t *testing.T, secret, eventType string, body []byte) *http.Request {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	req := httptest.NewRequest("POST", "/api/v1/github/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestGitHubWebhookHandler(t *testing.T) {
	body := []byte(`{"action":"created","installation":{"id":42,"account":{"login":"acme-inc","type":"Organization"}}}`)

	t.Run("Valid Installation Event", func(t *testing.T) {
		svc := &fakeWebhooks{}
		h := NewGitHubWebhookHandler(svc, "whsec")

		rr := httptest.NewRecorder()
		h.Handle(rr, signedRequest(t, "whsec", "installation", body))

		if rr.Code != http.StatusOK {
			t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
		if len(svc.events) != 1 || svc.events[0].GetInstallation().GetID() != 42 {
			t.Errorf("Expected one installation event for 42, got %+v", svc.events)
		}
	})

	t.Run("Bad Signature", func(t *testing.T) {
		svc := &fakeWebhooks{}
		h := NewGitHubWebhookHandler(svc, "whsec")

		rr := httptest.NewRecorder()
		h.Handle(rr, signedRequest(t, "wrong", "installation", body))

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusUnauthorized)
		}
		if len(svc.events) != 0 {
			t.Error("Expected no events to be handled")
		}
	})

	t.Run("Other Event Ignored", func(t *testing.T) {
		svc := &fakeWebhooks{}
		h := NewGitHubWebhookHandler(svc, "whsec")

		rr := httptest.NewRecorder()
		h.Handle(rr, signedRequest(t, "whsec", "push", []byte(`{"ref":"refs/heads/main"}`)))

		if rr.Code != http.StatusAccepted {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusAccepted)
		}
	})

	t.Run("Oversized Payload", func(t *testing.T) {
		svc := &fakeWebhooks{}
		h := NewGitHubWebhookHandler(svc, "whsec")

		body := &endlessBody{}
		req := httptest.NewRequest("POST", "/api/v1/github/webhooks", io.NopCloser(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-GitHub-Event", "installation")
		req.Header.Set("X-Hub-Signature-256", "sha256=00")

		rr := httptest.NewRecorder()
		h.Handle(rr, req)

		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusRequestEntityTooLarge)
		}
		if body.read > maxWebhookPayload+1 {
			t.Errorf("Expected at most %d bytes read, got %d", maxWebhookPayload+1, body.read)
		}
		if len(svc.events) != 0 {
			t.Error("Expected no events to be handled")
		}
	})

	t.Run("No Secret Configured", func(t *testing.T) {
		h := NewGitHubWebhookHandler(&fakeWebhooks{}, "")

		rr := httptest.NewRecorder()
		h.Handle(rr, signedRequest(t, "", "installation", body))

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusServiceUnavailable)
		}
	})
}

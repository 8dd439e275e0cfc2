package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
)

func newTestResendProvider(t *testing.T, handler http.HandlerFunc) *ResendProvider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewResendProvider("re_test", "Campaign <news@example.com>")
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	p.client.BaseURL = base
	return p
}

func TestResendProviderSend(t *testing.T) {
	var got map[string]any
	p := newTestResendProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	})

	err := p.Send(context.Background(), preparer.Message{
		To:      "a@example.com",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Headers: map[string]string{"X-Campaign-ID": "c-1"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["from"] != "Campaign <news@example.com>" {
		t.Fatalf("expected configured source as from, got %v", got["from"])
	}
	if got["subject"] != "Hello" || got["html"] != "<p>Hi</p>" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestResendProviderSendErrors(t *testing.T) {
	p := newTestResendProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid to field"}`))
	})

	if err := p.Send(context.Background(), preparer.Message{Subject: "Hello"}); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
	if err := p.Send(context.Background(), preparer.Message{To: "a@example.com", Subject: "Hello", HTML: "x"}); err == nil {
		t.Fatalf("expected error from API")
	}
}

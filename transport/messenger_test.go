package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-labelwatch/core"
)

func TestHTTPMessenger_PostsPayload(t *testing.T) {
	var received directMessagePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer bot-token" {
			t.Errorf("expected bot token")
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	messenger := NewHTTPMessenger(server.Client(), server.URL+"/chat.postMessage", "bot-token")
	err := messenger.SendDirectMessage(context.Background(), "U1", core.RenderedMessage{Text: "hello", URL: "https://x"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if received.Channel != "U1" || received.Text != "hello" || received.URL != "https://x" {
		t.Fatalf("unexpected payload %+v", received)
	}
}

func TestHTTPMessenger_SurfacesRejectedAck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer server.Close()

	err := NewHTTPMessenger(server.Client(), server.URL, "").SendDirectMessage(context.Background(), "U1", core.RenderedMessage{Text: "x"})
	if err == nil {
		t.Fatalf("expected rejected ack to fail")
	}
}

func TestHTTPMessenger_RequiresURL(t *testing.T) {
	if err := NewHTTPMessenger(nil, "", "").SendDirectMessage(context.Background(), "U1", core.RenderedMessage{}); err == nil {
		t.Fatalf("expected missing url to fail")
	}
}

package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNotification(success bool) Notification {
	return Notification{
		ExecutedAt:    time.Now(),
		Kind:          "rotation",
		TokenSymbol:   "USDC",
		FromChain:     "ethereum",
		ToChain:       "arbitrum",
		AmountUSD:     decimal.NewFromInt(5000),
		NetBenefitUSD: decimal.NewFromInt(42),
		Success:       success,
		TxHash:        "0xfeed",
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification(true)); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	text := received["text"]
	for _, want := range []string{"completed", "USDC", "ethereum -> arbitrum", "0xfeed"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message %q missing %q", text, want)
		}
	}
}

func TestTelegramNotifierFailureMessage(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		text = payload["text"]
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	note := sampleNotification(false)
	note.ErrorMsg = "tx reverted"
	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(text, "FAILED") || !strings.Contains(text, "tx reverted") {
		t.Fatalf("failure message incomplete: %q", text)
	}
}

func TestTelegramNotifierRejectedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification(true)); err == nil {
		t.Fatal("ok=false must surface as an error")
	}
}

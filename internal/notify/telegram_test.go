package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_Send(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(config.TelegramConfig{
		Enabled:  true,
		BotToken: "123:abc",
		ChatID:   "-100200300",
	}, discardLogger())
	n.base = srv.URL

	if !n.Send(context.Background(), "pipeline up") {
		t.Fatal("Send returned false, want true")
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("request path = %q, want %q", gotPath, "/bot123:abc/sendMessage")
	}
	if gotBody["chat_id"] != "-100200300" {
		t.Errorf("chat_id = %q, want %q", gotBody["chat_id"], "-100200300")
	}
	if gotBody["text"] != "pipeline up" {
		t.Errorf("text = %q, want %q", gotBody["text"], "pipeline up")
	}
	if gotBody["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %q, want HTML", gotBody["parse_mode"])
	}
}

func TestNotifier_DisabledDropsMessages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cfg  config.TelegramConfig
	}{
		{"disabled by config", config.TelegramConfig{Enabled: false, BotToken: "t", ChatID: "c"}},
		{"missing token", config.TelegramConfig{Enabled: true, ChatID: "c"}},
		{"missing chat id", config.TelegramConfig{Enabled: true, BotToken: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(tt.cfg, discardLogger())
			n.base = srv.URL

			if n.Enabled() {
				t.Error("Enabled() = true, want false")
			}
			if n.Send(context.Background(), "dropped") {
				t.Error("Send returned true for a disabled notifier")
			}
		})
	}

	if calls.Load() != 0 {
		t.Errorf("disabled notifier made %d requests, want 0", calls.Load())
	}
}

func TestNotifier_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"}, discardLogger())
	n.base = srv.URL

	if n.Send(context.Background(), "nope") {
		t.Error("Send returned true for a rejected message")
	}
}

func TestNotifier_Startup(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		gotText = body["text"]
	}))
	defer srv.Close()

	n := New(config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"}, discardLogger())
	n.base = srv.URL

	n.Startup(context.Background(), []string{"NIFTY", "BANKNIFTY"}, 412)

	if !strings.Contains(gotText, "412") {
		t.Errorf("startup text %q does not mention the instrument count", gotText)
	}
	if !strings.Contains(gotText, "NIFTY, BANKNIFTY") {
		t.Errorf("startup text %q does not list the underlyings", gotText)
	}
}

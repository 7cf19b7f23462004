package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/retailware/bonusgate/internal/config"
	"github.com/retailware/bonusgate/internal/events"
)

func newBotServer(t *testing.T, handler http.HandlerFunc) (*Telegram, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tg := NewTelegram(config.Config{BotToken: "test-token"}, zap.NewNop())
	tg.apiBase = srv.URL
	return tg, srv
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	tg, _ := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	if err := tg.SendMessage(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/bottest-token/sendMessage") {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.ChatID != 42 || gotBody.Text != "hello" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestSendMessageAPIError(t *testing.T) {
	tg, _ := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"bot was blocked by the user"}`))
	})

	err := tg.SendMessage(context.Background(), 42, "hello")
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("err = %v, want api error", err)
	}
}

func TestSendMessageWithoutToken(t *testing.T) {
	tg := NewTelegram(config.Config{}, zap.NewNop())
	if err := tg.SendMessage(context.Background(), 42, "hello"); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestDeliverSkipsEventsWithoutChat(t *testing.T) {
	tg, srv := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no send expected")
	})
	defer srv.Close()

	// guest receipts have no telegram_id in the payload
	err := tg.Deliver(context.Background(), events.LoyaltyEvent{
		EventType: events.EventReceiptIngested,
		Payload:   datatypes.JSONMap{"receipt_guid": "r-1"},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
}

func TestDeliverSendsReceiptNotification(t *testing.T) {
	var gotBody sendMessageRequest
	tg, _ := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	})

	err := tg.Deliver(context.Background(), events.LoyaltyEvent{
		EventType: events.EventReceiptIngested,
		Payload:   datatypes.JSONMap{"telegram_id": float64(77), "bonus_earned": 12.5},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotBody.ChatID != 77 {
		t.Fatalf("chat_id = %d, want 77", gotBody.ChatID)
	}
	if !strings.Contains(gotBody.Text, "12.50") {
		t.Fatalf("text = %q", gotBody.Text)
	}
}

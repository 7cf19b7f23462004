package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/retailware/bonusgate/internal/clock"
	"github.com/retailware/bonusgate/internal/config"
)

func newAuthTestRouter(t *testing.T, cfg config.Config, clk clock.Clock) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		cfg:   cfg,
		log:   zap.NewNop(),
		clock: clk,
	}
	r := gin.New()
	r.POST("/probe", s.AuthGate(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func doProbe(r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/probe", bytes.NewBufferString(body))
	req.RemoteAddr = "192.0.2.10:51000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthGateFailClosed(t *testing.T) {
	r := newAuthTestRouter(t, config.Config{}, clock.SystemClock{})

	w := doProbe(r, "{}", map[string]string{"X-Api-Key": "anything"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Server auth not configured")) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestAuthGateIPAllowList(t *testing.T) {
	cfg := config.Config{
		IntegrationAPIKey: "secret",
		AllowedIPs:        []string{"10.1.2.3", "192.0.2.*"},
	}
	r := newAuthTestRouter(t, cfg, clock.SystemClock{})

	// socket peer 192.0.2.10 matches the wildcard
	w := doProbe(r, "{}", map[string]string{"X-Api-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("wildcard match: status = %d, want 200", w.Code)
	}

	// X-Real-IP takes precedence and is not in the list
	w = doProbe(r, "{}", map[string]string{
		"X-Api-Key": "secret",
		"X-Real-IP": "203.0.113.9",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("disallowed ip: status = %d, want 403", w.Code)
	}

	w = doProbe(r, "{}", map[string]string{
		"X-Api-Key": "secret",
		"X-Real-IP": "10.1.2.3",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("exact match: status = %d, want 200", w.Code)
	}
}

func TestAuthGateAPIKey(t *testing.T) {
	cfg := config.Config{IntegrationAPIKey: "secret"}
	r := newAuthTestRouter(t, cfg, clock.SystemClock{})

	w := doProbe(r, "{}", map[string]string{"X-Api-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", w.Code)
	}

	w = doProbe(r, "{}", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d, want 401", w.Code)
	}

	w = doProbe(r, "{}", map[string]string{"X-Api-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", w.Code)
	}
}

func signBody(secret, ts, body string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", ts, body)
	return mac.Sum(nil)
}

func TestAuthGateHMAC(t *testing.T) {
	now := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)
	cfg := config.Config{
		IntegrationAPIKey: "secret",
		HMACSecret:        "hmac-secret",
		HMACMaxSkew:       5 * time.Minute,
	}
	r := newAuthTestRouter(t, cfg, clock.Fixed(now))

	body := `{"receipt_guid":"r-1"}`
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := signBody("hmac-secret", ts, body)

	// hex encoding
	w := doProbe(r, body, map[string]string{
		"X-Api-Key":   "secret",
		"X-Timestamp": ts,
		"X-Sign":      hex.EncodeToString(sig),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("hex signature: status = %d, body %s", w.Code, w.Body.String())
	}

	// base64 encoding
	w = doProbe(r, body, map[string]string{
		"X-Api-Key":   "secret",
		"X-Timestamp": ts,
		"X-Sign":      base64.StdEncoding.EncodeToString(sig),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("base64 signature: status = %d", w.Code)
	}

	// tampered body
	w = doProbe(r, `{"receipt_guid":"r-2"}`, map[string]string{
		"X-Api-Key":   "secret",
		"X-Timestamp": ts,
		"X-Sign":      hex.EncodeToString(sig),
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("tampered body: status = %d, want 401", w.Code)
	}

	// stale timestamp
	stale := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
	w = doProbe(r, body, map[string]string{
		"X-Api-Key":   "secret",
		"X-Timestamp": stale,
		"X-Sign":      hex.EncodeToString(signBody("hmac-secret", stale, body)),
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("stale timestamp: status = %d, want 401", w.Code)
	}

	// missing signature
	w = doProbe(r, body, map[string]string{
		"X-Api-Key":   "secret",
		"X-Timestamp": ts,
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: status = %d, want 401", w.Code)
	}
}

func TestIPAllowedMatching(t *testing.T) {
	cases := []struct {
		ip      string
		allowed []string
		want    bool
	}{
		{"1.2.3.4", nil, true},
		{"1.2.3.4", []string{"1.2.3.4"}, true},
		{"1.2.3.4", []string{"1.2.3.5"}, false},
		{"1.2.3.4", []string{"1.2.3.*"}, true},
		{"1.2.4.4", []string{"1.2.3.*"}, false},
		{"1.2.3.4", []string{"5.6.7.8", "1.2.*"}, true},
	}
	for _, tc := range cases {
		if got := ipAllowed(tc.ip, tc.allowed); got != tc.want {
			t.Errorf("ipAllowed(%q, %v) = %v, want %v", tc.ip, tc.allowed, got, tc.want)
		}
	}
}

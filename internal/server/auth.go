package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/retailware/bonusgate/internal/observability/logger"
)

const (
	headerAPIKey    = "X-Api-Key"
	headerSignature = "X-Sign"
	headerTimestamp = "X-Timestamp"
)

// AuthGate guards the 1C integration endpoints. Checks run in a fixed order:
// configured key present (fail closed), source IP allow-list, shared key in
// constant time, then an optional HMAC signature over "{timestamp}." + body.
// Each rejection is logged with its real reason; the caller sees only the
// detail string.
func (s *Server) AuthGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := s.log.Named("authgate")

		if s.cfg.IntegrationAPIKey == "" {
			log.Error("integration api key not configured, rejecting all traffic")
			AbortWithError(c, ErrAuthUnset)
			return
		}

		ip := clientIP(c)
		if !ipAllowed(ip, s.cfg.AllowedIPs) {
			log.Warn("request from disallowed ip", zap.String("ip", ip))
			AbortWithError(c, ErrIPNotAllowed)
			return
		}

		key := strings.TrimSpace(c.GetHeader(headerAPIKey))
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.IntegrationAPIKey)) != 1 {
			log.Warn("api key mismatch",
				zap.String("ip", ip),
				zap.Any("request", logger.SafeFieldsFromRequest(c.Request)),
			)
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if s.cfg.HMACSecret != "" {
			if err := s.verifySignature(c); err != nil {
				log.Warn("signature rejected", zap.String("ip", ip), zap.Error(err))
				AbortWithError(c, err)
				return
			}
		}

		c.Next()
	}
}

// verifySignature checks X-Sign against HMAC-SHA256(secret, "{ts}." + body).
// The signature may be hex, base64 or base64url encoded. The body is
// restored for the downstream handler.
func (s *Server) verifySignature(c *gin.Context) error {
	ts := strings.TrimSpace(c.GetHeader(headerTimestamp))
	if ts == "" {
		return ErrStaleTimestamp
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	now := s.clock.Now().Unix()
	skew := int64(s.cfg.HMACMaxSkew.Seconds())
	if unix < now-skew || unix > now+skew {
		return ErrStaleTimestamp
	}

	sign := strings.TrimSpace(c.GetHeader(headerSignature))
	if sign == "" {
		return ErrBadSignature
	}
	provided, ok := decodeSignature(sign)
	if !ok {
		return ErrBadSignature
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ErrBadSignature
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	mac := hmac.New(sha256.New, []byte(s.cfg.HMACSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

func decodeSignature(sign string) ([]byte, bool) {
	if raw, err := hex.DecodeString(sign); err == nil {
		return raw, true
	}
	if raw, err := base64.StdEncoding.DecodeString(sign); err == nil {
		return raw, true
	}
	if raw, err := base64.URLEncoding.DecodeString(sign); err == nil {
		return raw, true
	}
	if raw, err := base64.RawURLEncoding.DecodeString(sign); err == nil {
		return raw, true
	}
	return nil, false
}

// clientIP prefers the reverse-proxy headers, falling back to the socket
// peer address.
func clientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := strings.TrimSpace(c.GetHeader("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// ipAllowed matches the source against the allow-list. Entries are exact
// addresses or prefix wildcards like "10.0.0.*". An empty list allows all.
func ipAllowed(ip string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, entry := range allowed {
		if strings.HasSuffix(entry, "*") {
			if strings.HasPrefix(ip, strings.TrimSuffix(entry, "*")) {
				return true
			}
			continue
		}
		if ip == entry {
			return true
		}
	}
	return false
}

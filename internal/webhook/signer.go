// Package webhook delivers signed notifications to nutritionist endpoints.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultReplayWindow bounds clock skew between sender and receiver.
	DefaultReplayWindow = 5 * time.Minute

	// SecretPrefix marks webhook signing secrets.
	SecretPrefix = "whsec_"
)

// Signature is the parsed form of the X-SmartDiet-Signature header. The
// MAC covers "<unix seconds>.<raw body>" so the timestamp cannot be
// swapped without invalidating it.
type Signature struct {
	Timestamp int64
	MAC       string
}

// Sign computes the v1 signature of body at the given time.
func Sign(secret string, at time.Time, body []byte) Signature {
	ts := at.Unix()
	return Signature{Timestamp: ts, MAC: computeMAC(secret, ts, body)}
}

// String renders the header value "t=<ts>,v1=<hex mac>".
func (s Signature) String() string {
	return "t=" + strconv.FormatInt(s.Timestamp, 10) + ",v1=" + s.MAC
}

// ParseSignature reads a header value. Unknown keys are skipped so a future
// v2 scheme can be added alongside v1.
func ParseSignature(header string) (Signature, error) {
	var sig Signature
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Signature{}, ErrMalformedSignature
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ts <= 0 {
				return Signature{}, ErrMalformedSignature
			}
			sig.Timestamp = ts
		case "v1":
			sig.MAC = value
		}
	}
	if sig.Timestamp == 0 || sig.MAC == "" {
		return Signature{}, ErrMalformedSignature
	}
	return sig, nil
}

// Check validates s against body. Timestamps further than window from now,
// in either direction, are rejected before the MAC is compared.
func (s Signature) Check(secret string, body []byte, now time.Time, window time.Duration) error {
	skew := now.Sub(time.Unix(s.Timestamp, 0))
	if skew > window || skew < -window {
		return ErrReplayWindowExceeded
	}
	if !hmac.Equal([]byte(computeMAC(secret, s.Timestamp, body)), []byte(s.MAC)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySignatureHeader is the receiver-side entry point: parse, then Check
// against the wall clock.
func VerifySignatureHeader(secret, header string, body []byte, window time.Duration) error {
	sig, err := ParseSignature(header)
	if err != nil {
		return err
	}
	return sig.Check(secret, body, time.Now(), window)
}

func computeMAC(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(strconv.AppendInt(nil, ts, 10))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HashSecret fingerprints a signing secret. Only the fingerprint and the
// sealed secret are persisted.
func HashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// GenerateSecret creates a random signing secret: "whsec_" + 64 hex chars.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}

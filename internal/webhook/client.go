package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Request headers sent with every delivery.
const (
	HeaderSignature  = "X-SmartDiet-Signature"
	HeaderEvent      = "X-SmartDiet-Event"
	HeaderDeliveryID = "X-SmartDiet-Delivery-Id"

	userAgent = "SmartDiet-Webhook/1.0"
)

// maxReceiverBody is how much of a receiver's response is read. A short
// excerpt of a failing response is kept on the delivery for the dashboard.
const maxReceiverBody = 1 << 10

// sender posts signed payloads. Redirects are not followed, so a receiver
// cannot bounce a delivery to an address the policy would have refused.
type sender struct {
	client *http.Client
	now    func() time.Time
}

func newSender(allowPrivate bool) *sender {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !allowPrivate {
		dialer.Control = dialControl
	}
	return &sender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy:                 nil,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

// sendResult is what one POST to a receiver produced.
type sendResult struct {
	status   int // 0 when no response arrived
	excerpt  string
	duration time.Duration
}

func (r sendResult) ok() bool { return r.status >= 200 && r.status < 300 }

// send signs body with secret at the current time and posts it to target.
// A transport error is returned as err; any HTTP status is a result.
func (s *sender) send(ctx context.Context, target, secret, eventType, deliveryID string, body []byte) (sendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return sendResult{}, fmt.Errorf("build request: %w", err)
	}
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set(HeaderEvent, eventType)
	h.Set(HeaderDeliveryID, deliveryID)
	h.Set(HeaderSignature, Sign(secret, s.now(), body).String())

	start := time.Now()
	resp, err := s.client.Do(req)
	res := sendResult{duration: time.Since(start)}
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	res.status = resp.StatusCode
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxReceiverBody))
	if !res.ok() {
		res.excerpt = strings.TrimSpace(string(excerpt))
	}
	return res, nil
}

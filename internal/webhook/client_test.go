package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSender_Send(t *testing.T) {
	t.Parallel()

	const secret = "whsec_test"
	body := []byte(`{"type":"request.created","data":{"request_id":"req_1"}}`)

	tests := []struct {
		name        string
		status      int
		reply       string
		wantOK      bool
		wantExcerpt string
	}{
		{"accepted", http.StatusAccepted, "ignored", true, ""},
		{"receiver error", http.StatusServiceUnavailable, "  maintenance window \n", false, "maintenance window"},
		{"redirect not followed", http.StatusFound, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			type seen struct {
				sigErr          error
				event, delivery string
			}
			seenCh := make(chan seen, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				payload, _ := io.ReadAll(r.Body)
				seenCh <- seen{
					sigErr:   VerifySignatureHeader(secret, r.Header.Get(HeaderSignature), payload, DefaultReplayWindow),
					event:    r.Header.Get(HeaderEvent),
					delivery: r.Header.Get(HeaderDeliveryID),
				}
				if tt.status == http.StatusFound {
					http.Redirect(w, r, "http://169.254.169.254/latest", http.StatusFound)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.reply)
			}))
			defer srv.Close()

			res, err := newSender(true).send(context.Background(), srv.URL, secret, "request.created", "dlv_1", body)
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if res.ok() != tt.wantOK || res.status != tt.status {
				t.Errorf("result = %+v, want status %d ok=%v", res, tt.status, tt.wantOK)
			}
			if res.excerpt != tt.wantExcerpt {
				t.Errorf("excerpt = %q, want %q", res.excerpt, tt.wantExcerpt)
			}
			got := <-seenCh
			if got.sigErr != nil {
				t.Errorf("receiver rejected signature: %v", got.sigErr)
			}
			if got.event != "request.created" || got.delivery != "dlv_1" {
				t.Errorf("headers: event=%q delivery=%q", got.event, got.delivery)
			}
		})
	}
}

func TestSender_ExcerptIsBounded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, strings.Repeat("x", 10*maxReceiverBody))
	}))
	defer srv.Close()

	res, err := newSender(true).send(context.Background(), srv.URL, "s", "message.created", "dlv_2", []byte("{}"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(res.excerpt) != maxReceiverBody {
		t.Errorf("excerpt length = %d, want %d", len(res.excerpt), maxReceiverBody)
	}
}

func TestSender_RefusesPrivateAddresses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach a loopback receiver")
	}))
	defer srv.Close()

	_, err := newSender(false).send(context.Background(), srv.URL, "s", "consultation.booked", "dlv_3", []byte("{}"))
	if !errors.Is(err, ErrPrivateIP) {
		t.Errorf("send to loopback = %v, want ErrPrivateIP", err)
	}
}

func TestSender_SignsWithSendTime(t *testing.T) {
	t.Parallel()

	headers := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get(HeaderSignature)
	}))
	defer srv.Close()

	s := newSender(true)
	s.now = func() time.Time { return time.Unix(1760000000, 0) }
	if _, err := s.send(context.Background(), srv.URL, "s", "message.created", "dlv_4", []byte("{}")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sig, err := ParseSignature(<-headers); err != nil || sig.Timestamp != 1760000000 {
		t.Errorf("signature timestamp = %d (%v), want 1760000000", sig.Timestamp, err)
	}
}

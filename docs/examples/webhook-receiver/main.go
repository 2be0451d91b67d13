// Command webhook-receiver is a small nutritionist-side endpoint that checks
// SmartDiet webhook signatures and prints the events it accepts.
//
//	SMARTDIET_WEBHOOK_SECRET=whsec_... go run . -addr :9000
//
// Register http://<host>:9000/webhook in the SmartDiet dashboard.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const tolerance = 5 * time.Minute

type envelope struct {
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type receiver struct {
	secret []byte
	log    *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time // delivery ID -> first seen
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	secret := os.Getenv("SMARTDIET_WEBHOOK_SECRET")
	if secret == "" {
		log.Error("SMARTDIET_WEBHOOK_SECRET is required")
		os.Exit(1)
	}

	rcv := &receiver{secret: []byte(secret), log: log, seen: map[string]time.Time{}}
	mux := http.NewServeMux()
	mux.Handle("POST /webhook", rcv)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log.Info("listening", "addr", *addr)
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if err := verify(r.Header.Get("X-SmartDiet-Signature"), body, rc.secret, time.Now()); err != nil {
		rc.log.Warn("rejected delivery", "reason", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	// Deliveries are retried until a 2xx arrives, so the same ID can show up
	// more than once.
	id := r.Header.Get("X-SmartDiet-Delivery-Id")
	if rc.duplicate(id) {
		w.WriteHeader(http.StatusOK)
		return
	}

	var ev envelope
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	rc.handle(ev, id)
	w.WriteHeader(http.StatusOK)
}

func (rc *receiver) duplicate(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	now := time.Now()
	for k, t := range rc.seen {
		if now.Sub(t) > 24*time.Hour {
			delete(rc.seen, k)
		}
	}
	if _, ok := rc.seen[id]; ok {
		return true
	}
	rc.seen[id] = now
	return false
}

func (rc *receiver) handle(ev envelope, deliveryID string) {
	attrs := []any{"event", ev.EventType, "event_id", ev.EventID, "delivery_id", deliveryID}

	switch ev.EventType {
	case "request.created":
		var d struct {
			PatientName string `json:"patient_name"`
			PatientID   string `json:"patient_id"`
		}
		_ = json.Unmarshal(ev.Data, &d)
		attrs = append(attrs, "patient", d.PatientName, "patient_id", d.PatientID)
	case "message.created":
		var d struct {
			SenderName string `json:"sender_name"`
			Preview    string `json:"preview"`
		}
		_ = json.Unmarshal(ev.Data, &d)
		attrs = append(attrs, "from", d.SenderName, "preview", d.Preview)
	case "consultation.booked":
		var d struct {
			ScheduledAt     time.Time `json:"scheduled_at"`
			DurationMinutes int       `json:"duration_minutes"`
		}
		_ = json.Unmarshal(ev.Data, &d)
		attrs = append(attrs, "at", d.ScheduledAt.Local().Format(time.DateTime), "minutes", d.DurationMinutes)
	}
	rc.log.Info("event received", attrs...)
}

// verify checks a "t=<unix>,v1=<hex hmac>" header. The MAC covers
// "<unix>.<body>" under the endpoint secret.
func verify(header string, body, secret []byte, now time.Time) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return errors.New("missing or malformed signature")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.New("malformed signature timestamp")
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return errors.New("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	want := mac.Sum(nil)
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, want) {
		return errors.New("signature mismatch")
	}
	return nil
}

package mealstream

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewConsumerID names this process within ConsumerGroup as
// "<host>.<pid>.<random>". Stream consumers show up in XINFO output, so the
// host part is kept readable and free of spaces.
func NewConsumerID() string {
	host, _ := os.Hostname()
	host = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return -1
		}
	}, host)
	if host == "" {
		host = "api"
	}
	suffix := uuid.New()
	return host + "." + strconv.Itoa(os.Getpid()) + "." + hex.EncodeToString(suffix[:4])
}

// Package meeting holds the meeting-provider contract: the result shape of
// provisioning calls and the webhook verification rules. The actual HTTP
// client lives outside this system.
package meeting

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Meeting struct {
	Ref     string
	JoinURL string
}

// Provider creates and tears down meeting resources.
type Provider interface {
	CreateMeeting(ctx context.Context, topic string, startAt time.Time, durationMinutes int) (*Meeting, error)
	DeleteMeeting(ctx context.Context, meetingRef string) error
}

// LocalProvider mints meeting refs without an external API. Development
// fallback when no meeting API is configured; the join URL is not a working
// call.
type LocalProvider struct {
	BaseURL string
}

func (p LocalProvider) CreateMeeting(ctx context.Context, topic string, startAt time.Time, durationMinutes int) (*Meeting, error) {
	ref := localRef()
	base := p.BaseURL
	if base == "" {
		base = "https://meet.invalid"
	}
	return &Meeting{Ref: ref, JoinURL: base + "/" + ref}, nil
}

func (p LocalProvider) DeleteMeeting(ctx context.Context, meetingRef string) error {
	return nil
}

func localRef() string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	return "local_" + hex.EncodeToString(buf[:])
}

// Participant webhook event kinds.
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// VerifySignature checks the provider HMAC over "{timestamp}.{rawBody}" in
// constant time.
func VerifySignature(secret, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// EventHash derives the dedup key for a delivery from everything that makes
// it unique on the wire.
func EventHash(timestamp, signature string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(timestamp))
	h.Write([]byte("|"))
	h.Write([]byte(signature))
	h.Write([]byte("|"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

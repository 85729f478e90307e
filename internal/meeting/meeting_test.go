package meeting

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	timestamp := "1767225600"
	body := []byte(`{"event":"participant_joined","meeting_ref":"m_1"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	if !VerifySignature(secret, timestamp, body, signature) {
		t.Errorf("expected valid signature to verify")
	}
	if VerifySignature(secret, timestamp, body, signature+"00") {
		t.Errorf("expected tampered signature to fail")
	}
	if VerifySignature(secret, "1767225601", body, signature) {
		t.Errorf("expected changed timestamp to fail")
	}
	if VerifySignature("othersecret", timestamp, body, signature) {
		t.Errorf("expected wrong secret to fail")
	}
}

func TestEventHashStableAndContentSensitive(t *testing.T) {
	body := []byte(`{"event":"participant_left"}`)

	first := EventHash("1767225600", "sig", body)
	second := EventHash("1767225600", "sig", body)
	if first != second {
		t.Errorf("same delivery must hash identically")
	}

	if EventHash("1767225601", "sig", body) == first {
		t.Errorf("timestamp change must change the hash")
	}
	if EventHash("1767225600", "other", body) == first {
		t.Errorf("signature change must change the hash")
	}
	if EventHash("1767225600", "sig", []byte(`{}`)) == first {
		t.Errorf("body change must change the hash")
	}
}

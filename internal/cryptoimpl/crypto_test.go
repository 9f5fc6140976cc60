package cryptoimpl

import (
	"testing"

	"github.com/cinderfile/cinder/internal/domain"
)

func TestRandomBytesLengthAndDistinctness(t *testing.T) {
	c := New()
	a, err := c.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes error: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(a))
	}
	b, err := c.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes error: %v", err)
	}
	if string(a) == string(b) {
		t.Fatalf("expected two random draws to differ")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	c := New()
	secret, err := domain.NewSessionSecret([]byte("hmac-secret-key"))
	if err != nil {
		t.Fatalf("NewSessionSecret error: %v", err)
	}
	defer secret.Close()

	payload := []byte("canonicalized-request-bytes")
	mac, err := c.Sign(secret, payload)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	ok, err := c.Verify(secret, payload, mac)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected matching HMAC to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	c := New()
	secret, err := domain.NewSessionSecret([]byte("hmac-secret-key"))
	if err != nil {
		t.Fatalf("NewSessionSecret error: %v", err)
	}
	defer secret.Close()

	mac, err := c.Sign(secret, []byte("original"))
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	ok, err := c.Verify(secret, []byte("tampered"), mac)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestVerifyMismatchIsNotAnError(t *testing.T) {
	c := New()
	secret, err := domain.NewSessionSecret([]byte("hmac-secret-key"))
	if err != nil {
		t.Fatalf("NewSessionSecret error: %v", err)
	}
	defer secret.Close()

	var wrong domain.Hmac
	ok, err := c.Verify(secret, []byte("payload"), wrong)
	if err != nil {
		t.Fatalf("Verify must not return an error on mismatch, got %v", err)
	}
	if ok {
		t.Fatalf("expected zero-value HMAC to fail verification")
	}
}

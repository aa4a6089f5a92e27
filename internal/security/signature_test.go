package security

import "testing"

func TestSignature_RoundTrip(t *testing.T) {
	body := []byte(`{"targetEmail":"target@b.com"}`)
	bodyHash := ComputeBodyHash(body)
	sig := ComputeSignature("sig-secret", "sess-1", "POST", "/api/v1/auth/switch-account", "", bodyHash, "2026-08-31T12:00:00Z", "nonce-1")

	if !ValidateSignature("sig-secret", "sess-1", sig, "POST", "/api/v1/auth/switch-account", "", body, "2026-08-31T12:00:00Z", "nonce-1") {
		t.Fatalf("expected signature to validate")
	}
}

func TestSignature_TamperedBodyRejected(t *testing.T) {
	body := []byte(`{"targetEmail":"target@b.com"}`)
	bodyHash := ComputeBodyHash(body)
	sig := ComputeSignature("sig-secret", "sess-1", "POST", "/p", "", bodyHash, "2026-08-31T12:00:00Z", "nonce-1")

	tampered := []byte(`{"targetEmail":"attacker@b.com"}`)
	if ValidateSignature("sig-secret", "sess-1", sig, "POST", "/p", "", tampered, "2026-08-31T12:00:00Z", "nonce-1") {
		t.Fatalf("tampered body must not validate")
	}
}

func TestSignature_WrongSessionRejected(t *testing.T) {
	body := []byte(`{}`)
	bodyHash := ComputeBodyHash(body)
	sig := ComputeSignature("sig-secret", "sess-1", "POST", "/p", "", bodyHash, "2026-08-31T12:00:00Z", "nonce-1")

	if ValidateSignature("sig-secret", "sess-2", sig, "POST", "/p", "", body, "2026-08-31T12:00:00Z", "nonce-1") {
		t.Fatalf("signature keyed on another session must not validate")
	}
}

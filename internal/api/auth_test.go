package api

import "testing"

func TestCheckBearerTokenAcceptsMatchingToken(t *testing.T) {
	if !CheckBearerToken("Bearer secret123", "secret123") {
		t.Fatal("expected matching bearer token to be accepted")
	}
}

func TestCheckBearerTokenRejectsMismatch(t *testing.T) {
	if CheckBearerToken("Bearer wrong", "secret123") {
		t.Fatal("expected mismatched token to be rejected")
	}
}

func TestCheckBearerTokenRejectsMissingScheme(t *testing.T) {
	if CheckBearerToken("secret123", "secret123") {
		t.Fatal("expected a header without the Bearer scheme to be rejected")
	}
}

func TestCheckBearerTokenNoConfiguredKeyAllowsAll(t *testing.T) {
	if !CheckBearerToken("", "") {
		t.Fatal("expected no configured key to allow unauthenticated requests")
	}
}

package domain

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParsePluginState(t *testing.T) {
	cases := map[string]PluginState{
		"OK":        StateOK,
		"ANONYMOUS": StateAnonymous,
		"NOT_FOUND": StateNotFound,
		"":          StateUnknown,
		"garbled":   StateUnknown,
	}
	for raw, want := range cases {
		if got := ParsePluginState(raw); got != want {
			t.Errorf("ParsePluginState(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestStateChangeReason(t *testing.T) {
	if got := StateChangeReason(true); got != "STATE_CHANGE:LOGGED_IN:true" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := StateChangeReason(false); got != "STATE_CHANGE:LOGGED_IN:false" {
		t.Fatalf("unexpected reason %q", got)
	}
}

func TestInspectToken(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  float64(42),
		"iat": issued.Unix(),
		"exp": issued.Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	claims, err := InspectToken("JWT " + signed)
	if err != nil {
		t.Fatalf("InspectToken failed: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("expected user id 42, got %d", claims.UserID)
	}
	if !claims.IssuedAt.Equal(issued) {
		t.Errorf("expected iat %v, got %v", issued, claims.IssuedAt)
	}
	if !claims.ExpiresAt.Equal(issued.Add(time.Hour)) {
		t.Errorf("unexpected exp %v", claims.ExpiresAt)
	}
}

func TestInspectTokenRejectsGarbage(t *testing.T) {
	if _, err := InspectToken(""); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := InspectToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

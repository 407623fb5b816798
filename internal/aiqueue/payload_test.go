package aiqueue

import (
	"strings"
	"testing"

	"github.com/yocore/yocore/internal/eventbus"
	"github.com/yocore/yocore/internal/storage"
)

func TestTruncateTailKeepsMostRecentContent(t *testing.T) {
	s := strings.Repeat("a", 100) + "TAIL"
	got := truncateTail(s, 4)
	if got != "TAIL" {
		t.Fatalf("expected tail-preferred truncation to keep the last 4 runes, got %q", got)
	}
}

func TestTruncateTailNoOpUnderBudget(t *testing.T) {
	s := "short"
	if got := truncateTail(s, 1000); got != s {
		t.Fatalf("expected no truncation under budget, got %q", got)
	}
}

func TestBuildPayloadIncludesRoleAndContent(t *testing.T) {
	msgs := []storage.Message{
		{Role: storage.RoleHuman, SearchContent: "hello"},
		{Role: storage.RoleAssistant, SearchContent: "hi there"},
	}
	data, err := buildPayload(eventbus.FeatureMemory, "proj1", "sess1", msgs)
	if err != nil {
		t.Fatalf("buildPayload failed: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "hello") || !strings.Contains(s, "hi there") {
		t.Fatalf("expected transcript to contain both messages, got %s", s)
	}
	if !strings.Contains(s, "proj1") || !strings.Contains(s, "sess1") {
		t.Fatalf("expected payload to carry project and session IDs, got %s", s)
	}
}

func TestParseResponseRejectsMalformedJSON(t *testing.T) {
	_, err := parseResponse([]byte("not json"))
	if err == nil {
		t.Fatal("expected parseResponse to fail on malformed JSON")
	}
	if !isSchemaError(err) {
		t.Fatalf("expected a schema error, got %v", err)
	}
}

func TestParseResponseAcceptsValidPayload(t *testing.T) {
	resp, err := parseResponse([]byte(`{"title":"Auth refactor"}`))
	if err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}
	if resp.Title != "Auth refactor" {
		t.Fatalf("unexpected title: %q", resp.Title)
	}
}

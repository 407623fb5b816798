package mdns

import "testing"

func TestSuppressWhenDisabled(t *testing.T) {
	if !Suppress("203.0.113.5", false) {
		t.Fatal("expected suppression when mdns_enabled=false regardless of host")
	}
}

func TestSuppressOnLoopbackHost(t *testing.T) {
	cases := []string{"", "localhost", "127.0.0.1", "::1"}
	for _, host := range cases {
		if !Suppress(host, true) {
			t.Fatalf("expected suppression for loopback host %q", host)
		}
	}
}

func TestNotSuppressedForRoutableHost(t *testing.T) {
	if Suppress("203.0.113.5", true) {
		t.Fatal("did not expect suppression for a routable host with mdns enabled")
	}
}

func TestTxtRecordOmitsEmptyName(t *testing.T) {
	rec := TxtRecord(TxtInfo{
		Version:        "1.0.0",
		InstanceUUID:   "abc-123",
		Hostname:       "myhost",
		APIKeyRequired: true,
		ProjectCount:   3,
	})
	if _, ok := rec["name"]; ok {
		t.Fatal("expected name key to be omitted when InstanceName is empty")
	}
	if rec["api_key_required"] != "true" || rec["projects"] != "3" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestTxtRecordIncludesName(t *testing.T) {
	rec := TxtRecord(TxtInfo{InstanceUUID: "abc-123", InstanceName: "dev-box"})
	if rec["name"] != "dev-box" {
		t.Fatalf("expected name to be present, got %+v", rec)
	}
}

func TestAdvertiseRejectsInvalidInput(t *testing.T) {
	if _, err := Advertise(TxtInfo{}, 8080); err == nil {
		t.Fatal("expected error for missing instance uuid")
	}
	if _, err := Advertise(TxtInfo{InstanceUUID: "abc"}, 0); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestAdvertiseReturnsCloseableHandle(t *testing.T) {
	closer, err := Advertise(TxtInfo{InstanceUUID: "abc-123"}, 7777)
	if err != nil {
		t.Fatalf("Advertise failed: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

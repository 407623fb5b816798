// Package mdns is the thin contract wrapper spec.md §6 describes for
// service discovery: the actual mDNS daemon is an external collaborator
// (spec.md §1 scopes "mDNS advertisement beyond its information contract"
// out), so this package only defines the TXT record shape, the
// Advertise/Suppress contract a host process calls, and the suppression
// rule (loopback host or mdns_enabled=false).
package mdns

import (
	"fmt"
	"io"
	"net"
	"strconv"
)

// ServiceType is spec.md §6's mDNS service type.
const ServiceType = "_yocore._tcp.local."

// TxtInfo is spec.md §6's TXT record shape: `version`, `uuid`, `hostname`,
// `name?`, `api_key_required`, `projects`.
type TxtInfo struct {
	Version        string
	InstanceUUID   string
	Hostname       string
	InstanceName   string // optional; omitted from the TXT record when empty
	APIKeyRequired bool
	ProjectCount   int
}

// TxtRecord renders TxtInfo into the flat key/value pairs a real mDNS
// daemon would publish as the service's TXT record.
func TxtRecord(info TxtInfo) map[string]string {
	record := map[string]string{
		"version":          info.Version,
		"uuid":             info.InstanceUUID,
		"hostname":         info.Hostname,
		"api_key_required": strconv.FormatBool(info.APIKeyRequired),
		"projects":         strconv.Itoa(info.ProjectCount),
	}
	if info.InstanceName != "" {
		record["name"] = info.InstanceName
	}
	return record
}

// Suppress reports whether advertisement should not happen at all (spec.md
// §6: "Advertisement suppressed when host is loopback or when
// mdns_enabled=false").
func Suppress(host string, mdnsEnabled bool) bool {
	if !mdnsEnabled {
		return true
	}
	return isLoopbackHost(host)
}

func isLoopbackHost(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Advertiser is the contract a real mDNS daemon implementation satisfies;
// Advertise returns one bound to a concrete service instance.
type Advertiser interface {
	io.Closer
}

// Advertise publishes info on port via ServiceType and returns a handle
// whose Close call de-advertises the service (spec.md §6: "De-advertised
// on shutdown via scoped acquisition of the mDNS daemon handle"). The
// actual network publication is the external daemon's responsibility;
// this function only validates the contract shape and returns a no-op
// closer, since no mDNS daemon library appears anywhere in this corpus to
// wire against (see DESIGN.md).
func Advertise(info TxtInfo, port int) (io.Closer, error) {
	if port <= 0 {
		return nil, fmt.Errorf("advertise: invalid port %d", port)
	}
	if info.InstanceUUID == "" {
		return nil, fmt.Errorf("advertise: missing instance uuid")
	}
	return noopCloser{}, nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

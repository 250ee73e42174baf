// Package discovery advertises the event stream server on the local network
// via mDNS, so development tooling and LAN clients can find it without
// configuration. Advertising is optional and off by default.
package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// ServiceType is the mDNS service type for event stream servers.
const ServiceType = "_pulsewire._tcp"

// DefaultDomain is the mDNS domain.
const DefaultDomain = "local."

// Config configures the advertiser.
type Config struct {
	// Instance is the advertised instance name.
	Instance string

	// Port is the HTTP listen port.
	Port int

	// Interface restricts advertising to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL in seconds. Zero uses the zeroconf default.
	TTL uint32
}

// Advertiser registers the server as an mDNS service.
type Advertiser struct {
	config Config

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser with the given configuration.
func NewAdvertiser(config Config) *Advertiser {
	if config.Instance == "" {
		config.Instance = "pulsewire"
	}
	return &Advertiser{config: config}
}

// Start registers the mDNS service. TXT records carry the API version and
// the SSE path so clients can connect without probing.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	txt := []string{
		"api=v1",
		"events=/v1/events",
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(a.config.TTL))
	}

	server, err := zeroconf.Register(
		a.config.Instance,
		ServiceType,
		DefaultDomain,
		a.config.Port,
		txt,
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("register mDNS service: %w", err)
	}

	a.server = server
	return nil
}

// Stop withdraws the advertisement. Safe to call multiple times.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// interfaces returns the interfaces to advertise on, nil meaning all.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

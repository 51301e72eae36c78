// Package discovery advertises the master over mDNS so slaves on the local
// network can find the address to send their introduce messages to.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/mdns"

	log "github.com/sirupsen/logrus"
)

const DefaultService = "_masterclock._udp"

type Config struct {
	Instance string // Instance name, defaults to the host name
	Service  string // Service type, defaults to DefaultService
	Port     int    // UDP port the master is bound to
	Wire     string // Advertised wire codec
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "masterclock"
		}
		out.Instance = host
	}
	return out
}

// NewService builds the mDNS zone describing the master.
func NewService(cfg *Config) (*mdns.MDNSService, error) {
	c := cfg.withDefaults()
	if c.Port <= 0 {
		return nil, fmt.Errorf("invalid port %d", c.Port)
	}

	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	if len(ips) == 0 {
		ips = []net.IP{net.IPv4(127, 0, 0, 1)}
	}

	txt := []string{"role=master"}
	if c.Wire != "" {
		txt = append(txt, "wire="+c.Wire)
	}

	return mdns.NewMDNSService(c.Instance, c.Service, "", "", c.Port, ips, txt)
}

// Advertise answers mDNS queries until ctx is cancelled.
func Advertise(ctx context.Context, cfg *Config) error {
	service, err := NewService(cfg)
	if err != nil {
		return err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Infof("Advertising mDNS service %s.%s on port %d", service.Instance, service.Service, service.Port)

	<-ctx.Done()
	if err := server.Shutdown(); err != nil {
		log.Warnf("mdns: shutdown error: %v", err)
	}
	return ctx.Err()
}

// localIPs returns the non-loopback IPv4 addresses of interfaces that are up.
func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}

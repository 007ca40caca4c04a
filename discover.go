package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/grandcat/zeroconf"
)

// DiscoveredServer is one OctoPrint instance found on the local network.
type DiscoveredServer struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// DiscoverOctoPrint browses mDNS for OctoPrint instances advertising
// _octoprint._tcp and returns whatever answered within the timeout.
func DiscoverOctoPrint(ctx context.Context, timeout time.Duration) ([]DiscoveredServer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan []DiscoveredServer, 1)

	go func() {
		var servers []DiscoveredServer
		for entry := range entries {
			server := DiscoveredServer{
				Name: entry.Instance,
				Host: entry.HostName,
				Port: entry.Port,
			}
			// Prefer the resolved address, the hostname may not be in DNS
			if len(entry.AddrIPv4) > 0 {
				server.Host = entry.AddrIPv4[0].String()
			}
			server.URL = fmt.Sprintf("http://%s:%d", server.Host, server.Port)

			log.Printf("🔍 Found OctoPrint instance: %s at %s", server.Name, server.URL)
			servers = append(servers, server)
		}
		results <- servers
	}()

	if err := resolver.Browse(ctx, "_octoprint._tcp", "local.", entries); err != nil {
		return nil, fmt.Errorf("failed to browse for OctoPrint instances: %w", err)
	}

	// Browse closes the entries channel once the context expires
	<-ctx.Done()
	return <-results, nil
}

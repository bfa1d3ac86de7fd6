package application

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// hostRefresh bounds how long a resolved DNS entry is trusted.
const hostRefresh = 5 * time.Minute

// OriginGuard checks webhook callers against IPs, CIDRs and host names.
type OriginGuard struct {
	allowAll bool
	ips      []net.IP
	nets     []*net.IPNet
	hosts    []string

	lookup func(ctx context.Context, host string) ([]net.IP, error)
	now    func() time.Time

	mu         sync.Mutex
	resolved   []net.IP
	resolvedAt time.Time
}

func NewOriginGuard(entries []string, allowAll bool) *OriginGuard {
	g := &OriginGuard{allowAll: allowAll, lookup: lookupHost, now: time.Now}
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if e == "*" {
			g.allowAll = true
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			g.nets = append(g.nets, n)
			continue
		}
		if ip := net.ParseIP(e); ip != nil {
			g.ips = append(g.ips, ip)
			continue
		}
		g.hosts = append(g.hosts, e)
	}
	return g
}

func lookupHost(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.IP)
	}
	return out, nil
}

// Allowed reports whether the caller address may post webhooks.
func (g *OriginGuard) Allowed(ctx context.Context, addr string) bool {
	if g.allowAll {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return false
	}
	for _, allowed := range g.ips {
		if allowed.Equal(ip) {
			return true
		}
	}
	for _, n := range g.nets {
		if n.Contains(ip) {
			return true
		}
	}
	for _, allowed := range g.hostIPs(ctx) {
		if allowed.Equal(ip) {
			return true
		}
	}
	return false
}

func (g *OriginGuard) hostIPs(ctx context.Context) []net.IP {
	if len(g.hosts) == 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved != nil && g.now().Sub(g.resolvedAt) < hostRefresh {
		return g.resolved
	}
	ips := []net.IP{}
	for _, h := range g.hosts {
		found, err := g.lookup(ctx, h)
		if err != nil {
			logrus.WithError(err).Warnf("[WEBHOOK] could not resolve allowed origin %s", h)
			continue
		}
		ips = append(ips, found...)
	}
	g.resolved, g.resolvedAt = ips, g.now()
	return ips
}

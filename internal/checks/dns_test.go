package checks

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmarins/sitesentry/internal/core"
)

// startDNSServer runs an in-process name server and returns its address.
func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func answerA(m *dns.Msg, name string, ips ...string) {
	for _, ip := range ips {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
			A:   net.ParseIP(ip),
		})
	}
}

func TestDNSCheckResolvesAAndMX(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		switch q.Qtype {
		case dns.TypeA:
			answerA(m, q.Name, "93.184.216.34", "93.184.216.33")
		case dns.TypeMX:
			for _, mx := range []struct {
				pref uint16
				host string
			}{{20, "backup.example.com."}, {10, "mail.example.com."}} {
				m.Answer = append(m.Answer, &dns.MX{
					Hdr:        dns.RR_Header{Name: q.Name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 300},
					Preference: mx.pref,
					Mx:         mx.host,
				})
			}
		}
		w.WriteMsg(m)
	})

	c := NewDNSChecker(2 * time.Second)
	c.Servers = []string{addr}

	out := c.Check(context.Background(), "https://example.com")
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, KindDNS, out.Kind)
	assert.Equal(t, []string{"93.184.216.33", "93.184.216.34"}, out.DNS.ARecords)
	assert.Equal(t, []core.MXRecord{
		{Priority: 10, Host: "mail.example.com"},
		{Priority: 20, Host: "backup.example.com"},
	}, out.DNS.MXRecords)
	assert.True(t, out.DNS.Authoritative)
}

func TestDNSCheckMXIsBestEffort(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		if q.Qtype == dns.TypeA {
			answerA(m, q.Name, "93.184.216.34")
		} else {
			m.Rcode = dns.RcodeServerFailure
		}
		w.WriteMsg(m)
	})

	c := NewDNSChecker(2 * time.Second)
	c.Servers = []string{addr}

	out := c.Check(context.Background(), "https://example.com")
	require.True(t, out.OK(), "A succeeded, MX failure must not fail the check: %v", out.Err)
	assert.Equal(t, []string{"93.184.216.34"}, out.DNS.ARecords)
	assert.Empty(t, out.DNS.MXRecords)
}

func TestDNSCheckNXDomain(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Rcode = dns.RcodeNameError
		w.WriteMsg(m)
	})

	c := NewDNSChecker(2 * time.Second)
	c.Servers = []string{addr}

	out := c.Check(context.Background(), "https://gone.example.com")
	require.False(t, out.OK())
	assert.Equal(t, FailNXDomain, out.Err.Kind)
}

func TestDNSCheckServerFailure(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Rcode = dns.RcodeServerFailure
		w.WriteMsg(m)
	})

	c := NewDNSChecker(2 * time.Second)
	c.Servers = []string{addr}

	out := c.Check(context.Background(), "https://example.com")
	require.False(t, out.OK())
	assert.Equal(t, FailServerFailure, out.Err.Kind)
}

func TestDNSCheckTriesNextServer(t *testing.T) {
	bad := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Rcode = dns.RcodeServerFailure
		w.WriteMsg(m)
	})
	good := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if r.Question[0].Qtype == dns.TypeA {
			answerA(m, r.Question[0].Name, "93.184.216.34")
		}
		w.WriteMsg(m)
	})

	c := NewDNSChecker(2 * time.Second)
	c.Servers = []string{bad, good}

	out := c.Check(context.Background(), "https://example.com")
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, []string{"93.184.216.34"}, out.DNS.ARecords)
}

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazz-dev/pingproxy/internal/probe"
	"github.com/hazz-dev/pingproxy/internal/routeros"
)

type stubProber struct {
	reply *routeros.Reply
	err   error
}

func (s *stubProber) Probe(context.Context, routeros.Request) (*routeros.Reply, error) {
	return s.reply, s.err
}

var _ routeros.Prober = (*stubProber)(nil)

var pingReq = routeros.Request{Router: "10.1.1.1", Target: "192.0.2.10"}

func TestRunPing_Online_OutputFormat(t *testing.T) {
	p := &stubProber{reply: &routeros.Reply{Records: []probe.Record{
		{Succeeded: true, RTTMillis: 10},
		{Succeeded: true, RTTMillis: 12},
		{},
	}}}

	var buf bytes.Buffer
	if err := runPing(context.Background(), &buf, p, pingReq); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"TARGET", "192.0.2.10", "online", "33.3%", "11ms", "2/3 packets received"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestRunPing_Offline(t *testing.T) {
	p := &stubProber{reply: &routeros.Reply{Records: []probe.Record{{}, {}, {}}}}

	var buf bytes.Buffer
	err := runPing(context.Background(), &buf, p, pingReq)
	if err == nil {
		t.Fatal("expected error for offline target")
	}
	if !strings.Contains(buf.String(), "100.0%") {
		t.Errorf("expected full loss in output, got:\n%s", buf.String())
	}
}

func TestRunPing_RouterUnreachable(t *testing.T) {
	p := &stubProber{err: &routeros.ConnectError{Router: "10.1.1.1:8728", Op: "connect", Err: errors.New("connection refused")}}

	var buf bytes.Buffer
	err := runPing(context.Background(), &buf, p, pingReq)
	if err == nil {
		t.Fatal("expected error when router is unreachable")
	}
	output := buf.String()
	if !strings.Contains(output, "error") || !strings.Contains(output, "connection refused") {
		t.Errorf("expected failure row, got:\n%s", output)
	}
}

func TestRunPing_UnexpectedError(t *testing.T) {
	p := &stubProber{err: errors.New("boom")}

	var buf bytes.Buffer
	err := runPing(context.Background(), &buf, p, pingReq)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no table output, got:\n%s", buf.String())
	}
}

func TestRunPing_ConnectionInfo(t *testing.T) {
	uptime := "3h 2m"
	p := &stubProber{reply: &routeros.Reply{
		Records:    []probe.Record{{Succeeded: true, RTTMillis: 5}},
		Connection: &probe.ConnectionInfo{Uptime: &uptime, Running: true, LinkDowns: 2},
	}}
	r := pingReq
	r.PPPUser = "juan"

	var buf bytes.Buffer
	if err := runPing(context.Background(), &buf, p, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "PPPoE juan: running=true uptime=3h 2m link-downs=2") {
		t.Errorf("expected connection info line, got:\n%s", buf.String())
	}
}

package routeros_test

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/go-routeros/routeros/v3/proto"

	"github.com/hazz-dev/pingproxy/internal/config"
	"github.com/hazz-dev/pingproxy/internal/probe"
	"github.com/hazz-dev/pingproxy/internal/routeros"
)

// fakeRouter listens on loopback and speaks the RouterOS API wire format.
// handle is called for every accepted connection.
func fakeRouter(t *testing.T, handle func(conn net.Conn)) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func writeSentence(w proto.Writer, words ...string) error {
	w.BeginSentence()
	for _, word := range words {
		w.WriteWord(word)
	}
	return w.EndSentence()
}

// answerPing accepts any login and answers /ping with two replies and one
// timed-out echo.
func answerPing(t *testing.T, conn net.Conn) {
	r := proto.NewReader(conn)
	w := proto.NewWriter(conn)
	for {
		sen, err := r.ReadSentence()
		if err != nil {
			return
		}
		var words [][]string
		switch sen.Word {
		case "/login":
			if sen.Map["name"] != "api" || sen.Map["password"] != "secret" {
				t.Errorf("login = %q/%q, want api/secret", sen.Map["name"], sen.Map["password"])
			}
			words = [][]string{{"!done"}}
		case "/ping":
			if sen.Map["address"] != "192.0.2.10" || sen.Map["count"] != "3" {
				t.Errorf("ping args = %v", sen.Map)
			}
			words = [][]string{
				{"!re", "=seq=0", "=host=192.0.2.10", "=time=10ms"},
				{"!re", "=seq=1", "=host=192.0.2.10", "=time=12ms"},
				{"!re", "=seq=2", "=host=192.0.2.10", "=status=timeout"},
				{"!done"},
			}
		default:
			words = [][]string{{"!trap", "=message=no such command"}, {"!done"}}
		}
		for _, sentence := range words {
			if sen.Tag != "" {
				sentence = append(sentence, ".tag="+sen.Tag)
			}
			if err := writeSentence(w, sentence...); err != nil {
				return
			}
		}
	}
}

func TestProbe_API(t *testing.T) {
	host, port := fakeRouter(t, func(conn net.Conn) { answerPing(t, conn) })

	cfg := config.RouterConfig{
		Username: "api",
		Password: "secret",
		Port:     port,
		Timeout:  config.Duration{Duration: 2 * time.Second},
	}
	c := routeros.New(cfg, nil)

	reply, err := c.Probe(context.Background(), routeros.Request{Router: host, Target: "192.0.2.10"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	want := []probe.Record{
		{Succeeded: true, RTTMillis: 10},
		{Succeeded: true, RTTMillis: 12},
		{Succeeded: false, RTTMillis: 0},
	}
	if !reflect.DeepEqual(reply.Records, want) {
		t.Errorf("Records = %v, want %v", reply.Records, want)
	}
	if reply.Connection != nil {
		t.Errorf("Connection = %+v, want nil", reply.Connection)
	}
}

func TestProbe_APIUnresponsiveRouter(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	host, port := fakeRouter(t, func(conn net.Conn) { <-release })

	cfg := config.RouterConfig{
		Username: "api",
		Password: "secret",
		Port:     port,
		Timeout:  config.Duration{Duration: 200 * time.Millisecond},
	}
	c := routeros.New(cfg, nil)

	start := time.Now()
	_, err := c.Probe(context.Background(), routeros.Request{Router: host, Target: "192.0.2.10"})
	elapsed := time.Since(start)

	var connErr *routeros.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v, want *routeros.ConnectError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want it to wrap context.DeadlineExceeded", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Probe took %v, want it bounded by the 200ms timeout", elapsed)
	}
}

func TestProbe_APIRouterClosesConnection(t *testing.T) {
	host, port := fakeRouter(t, func(conn net.Conn) {})

	cfg := config.RouterConfig{
		Username: "api",
		Password: "secret",
		Port:     port,
		Timeout:  config.Duration{Duration: 2 * time.Second},
	}
	c := routeros.New(cfg, nil)

	_, err := c.Probe(context.Background(), routeros.Request{Router: host, Target: "192.0.2.10"})
	var connErr *routeros.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v, want *routeros.ConnectError", err)
	}
	if connErr.Op != "connect" {
		t.Errorf("Op = %q, want connect", connErr.Op)
	}
}

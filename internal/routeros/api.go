package routeros

import (
	"context"
	"fmt"
	"net"
	"sync"

	ros "github.com/go-routeros/routeros/v3"
)

// apiDialer is the real Dialer. It logs in with the post-6.43 plaintext
// method; the management network is trusted.
type apiDialer struct {
	net net.Dialer
}

func (d *apiDialer) Dial(ctx context.Context, address, username, password string) (Session, error) {
	conn, err := d.net.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting deadline: %w", err)
		}
	}
	// Unblocks a hung read when the request is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	client, err := ros.NewClient(conn)
	if err != nil {
		stop()
		conn.Close()
		return nil, err
	}
	if err := client.Login(username, password); err != nil {
		stop()
		client.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	return &apiSession{client: client, stop: stop}, nil
}

type apiSession struct {
	client *ros.Client
	stop   func() bool
	once   sync.Once
}

func (s *apiSession) Run(words ...string) ([]map[string]string, error) {
	reply, err := s.client.Run(words...)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(reply.Re))
	for _, re := range reply.Re {
		out = append(out, re.Map)
	}
	return out, nil
}

func (s *apiSession) Close() error {
	s.once.Do(func() {
		s.stop()
		s.client.Close()
	})
	return nil
}

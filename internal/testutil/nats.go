package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartNATS starts an embedded NATS server on an ephemeral port and returns a
// connected client plus a cleanup function.
func StartNATS(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	s, err := server.NewServer(opts)
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	cleanup := func() {
		nc.Close()
		s.Shutdown()
	}
	return nc, cleanup
}

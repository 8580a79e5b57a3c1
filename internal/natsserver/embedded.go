// Package natsserver runs an in-process NATS server with JetStream so the
// job intake works without an external broker.
package natsserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/server"
)

const (
	readyTimeout = 5 * time.Second
	listenHost   = "127.0.0.1"
)

// ErrNotReady is returned when the server does not accept connections in time.
var ErrNotReady = errors.New("embedded NATS server failed to start")

// EmbeddedServer wraps a NATS server instance.
type EmbeddedServer struct {
	ns  *server.Server
	log *logger.Logger
}

// Start creates and starts a server on port (-1 picks a random one) that
// keeps JetStream data in storeDir.
func Start(port int, storeDir string, log *logger.Logger) (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:      listenHost,
		Port:      port,
		JetStream: true,
		StoreDir:  storeDir,
		NoSigs:    true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()

		return nil, fmt.Errorf("%w within %s", ErrNotReady, readyTimeout)
	}

	log.Info("Embedded NATS server listening on %s (store %s)", ns.ClientURL(), storeDir)

	return &EmbeddedServer{ns: ns, log: log}, nil
}

// ClientURL is the URL clients connect to.
func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}

	e.log.Info("Shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}

// Package valkeytest spins up a disposable ValKey container for integration
// tests.
package valkeytest

import (
	"context"
	"log/slog"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/valkey-io/valkey-go"

	valkeycontainer "github.com/testcontainers/testcontainers-go/modules/valkey"
	slogctx "github.com/veqryn/slog-context"
)

const (
	image      = "valkey/valkey:8-alpine"
	valkeyPort = nat.Port("6379")
)

// Start initialises a ValKey instance and returns a client, the mapped port,
// and a termination function.
func Start(ctx context.Context) (valkey.Client, nat.Port, func(ctx context.Context)) {
	container, err := valkeycontainer.Run(ctx, image)
	if err != nil {
		slogctx.Error(ctx, "Failed to start ValKey container", slog.String("error", err.Error()))
		panic(err)
	}

	port, err := container.MappedPort(ctx, valkeyPort)
	if err != nil {
		slogctx.Error(ctx, "Failed to get mapped port for the ValKey container", slog.String("error", err.Error()))
		panic(err)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{Addr(port)},
	})
	if err != nil {
		slogctx.Error(ctx, "Failed to initialise a ValKey client", slog.String("error", err.Error()))
		panic(err)
	}

	terminate := func(ctx context.Context) {
		if err := container.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate ValKey container", slog.String("error", err.Error()))
			panic(err)
		}
	}

	return client, port, terminate
}

// Addr builds the client address for the container mapped to port.
func Addr(port nat.Port) string {
	return net.JoinHostPort("localhost", port.Port())
}

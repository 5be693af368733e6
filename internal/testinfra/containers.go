// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Images used by the integration suites.
const (
	DefaultRedisImage = "redis:7-alpine"
	DefaultNATSImage  = "nats:2.10-alpine"
)

// SkipIfNoDocker skips the test if Docker is not available.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	if !IsDockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
}

// IsDockerAvailable checks if the Docker daemon is reachable.
func IsDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// CleanupContainer terminates a container and logs failures.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()
	if container != nil {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	}
}

// Service is a started container plus its host:port endpoint.
type Service struct {
	testcontainers.Container
	Addr string
}

// RedisContainer runs a disposable Redis.
type RedisContainer = Service

// NATSContainer runs a disposable NATS server. URL is nats://host:port.
type NATSContainer struct {
	Service
	URL string
}

// NewRedisContainer starts Redis and waits until it accepts connections.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        DefaultRedisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		).WithStartupTimeout(60 * time.Second),
	})
}

// NewNATSContainer starts a NATS server without JetStream.
func NewNATSContainer(ctx context.Context) (*NATSContainer, error) {
	svc, err := start(ctx, testcontainers.ContainerRequest{
		Image:        DefaultNATSImage,
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		).WithStartupTimeout(60 * time.Second),
	})
	if err != nil {
		return nil, err
	}
	return &NATSContainer{Service: *svc, URL: "nats://" + svc.Addr}, nil
}

func start(ctx context.Context, req testcontainers.ContainerRequest) (*Service, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s container: %w", req.Image, err)
	}
	// Each request exposes a single port, so the first endpoint is it.
	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container endpoint: %w", err)
	}
	return &Service{Container: container, Addr: addr}, nil
}

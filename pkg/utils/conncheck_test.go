package utils

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractFromDBURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"with port", "postgresql://user:pw@dbhost:6432/sdc", "dbhost:6432"},
		{"default port", "postgresql://user:pw@dbhost/sdc", "dbhost:5432"},
		{"postgres scheme", "postgres://user@localhost:5432/sdc?sslmode=disable", "localhost:5432"},
		{"no credentials", "postgresql://dbhost/sdc", "dbhost:5432"},
		{"no match", "mysql://dbhost/sdc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFromDBURL(tt.url))
		})
	}
}

func TestExtractFromNatsURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"with port", "nats://localhost:4223", "localhost:4223"},
		{"default port", "nats://natshost", "natshost:4222"},
		{"credentials", "nats://user:pw@natshost:4222", "natshost:4222"},
		{"cluster", "nats://a:4222,nats://b:4222", "a:4222"},
		{"no match", "http://natshost", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFromNatsURL(tt.url))
		})
	}
}

func TestWaitForTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	addr := l.Addr().String()
	assert.NoError(t, WaitForTCP(context.Background(), addr, time.Second))

	l.Close()
	assert.Error(t, WaitForTCP(context.Background(), addr, 300*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, WaitForTCP(ctx, addr, time.Second))
}

package middleware

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/oggyb/mood-buddy/internal/auth"
	"github.com/oggyb/mood-buddy/internal/logger"
)

const logMood = "/buddy.v1.BuddyService/LogMood"

func okHandler(ctx context.Context, req interface{}) (interface{}, error) { return ctx, nil }

func TestLimiterStore_BurstThenBlock(t *testing.T) {
	s := NewLimiterStore(5, 5, time.Hour)
	defer s.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, s.Allow("user:1"), "event %d within burst", i)
	}
	assert.False(t, s.Allow("user:1"))
	assert.True(t, s.Allow("user:2"), "keys are independent")
}

func TestLimiterStore_SweepDropsIdleKeys(t *testing.T) {
	s := NewLimiterStore(60, 1, time.Hour)
	defer s.Stop()

	now := time.Now()
	s.now = func() time.Time { return now }
	s.Allow("old")
	now = now.Add(idleAfter + time.Minute)
	s.Allow("fresh")

	s.sweep()
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.clients, "old")
	assert.Contains(t, s.clients, "fresh")
}

func TestRateLimitUnaryInterceptor_KeysByUser(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Hour)
	defer s.Stop()
	ic := RateLimitUnaryInterceptor(s, map[string]bool{logMood: true})
	info := &grpc.UnaryServerInfo{FullMethod: logMood}

	alice := auth.NewContext(context.Background(), &auth.Claims{UserID: 1})
	bob := auth.NewContext(context.Background(), &auth.Claims{UserID: 2})

	_, err := ic(alice, nil, info, okHandler)
	require.NoError(t, err)
	_, err = ic(alice, nil, info, okHandler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = ic(bob, nil, info, okHandler)
	assert.NoError(t, err)

	// unlisted methods are never throttled
	for i := 0; i < 3; i++ {
		_, err = ic(alice, nil, &grpc.UnaryServerInfo{FullMethod: "/buddy.v1.BuddyService/GetPoolStats"}, okHandler)
		assert.NoError(t, err)
	}
}

func TestCallerKey_FallsBackToPeer(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5555}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: addr})
	assert.Equal(t, "addr:10.0.0.1:5555", callerKey(ctx))
	assert.Equal(t, "unknown", callerKey(context.Background()))
}

func TestAuthUnaryInterceptor(t *testing.T) {
	jm := auth.NewJWTManager("secret", time.Minute)
	token, _, err := jm.GenerateToken(42, "sam")
	require.NoError(t, err)

	ic := AuthUnaryInterceptor(jm, map[string]bool{"/buddy.v1.BuddyService/Public": true})
	info := &grpc.UnaryServerInfo{FullMethod: logMood}

	cases := []struct {
		name string
		ctx  context.Context
		code codes.Code
	}{
		{"no metadata", context.Background(), codes.Unauthenticated},
		{"no header", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x", "y")), codes.Unauthenticated},
		{"empty bearer", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer ")), codes.Unauthenticated},
		{"bad token", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope")), codes.Unauthenticated},
		{"valid", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token)), codes.OK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := ic(tc.ctx, nil, info, okHandler)
			assert.Equal(t, tc.code, status.Code(err))
			if tc.code == codes.OK {
				c, ok := auth.FromContext(resp.(context.Context))
				require.True(t, ok)
				assert.Equal(t, uint64(42), c.UserID)
			}
		})
	}

	_, err = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/buddy.v1.BuddyService/Public"}, okHandler)
	assert.NoError(t, err, "public methods skip auth")
}

func TestLoggingUnaryInterceptor_InjectsLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logger.New(&logger.Config{Level: "debug", Format: logger.FormatJSON, Output: &buf})
	ic := LoggingUnaryInterceptor(base)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "req-1"))
	_, err := ic(ctx, nil, &grpc.UnaryServerInfo{FullMethod: logMood}, func(ctx context.Context, req interface{}) (interface{}, error) {
		logger.FromContext(ctx, nil).Info("inside handler")
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, "inside handler")
	assert.Contains(t, out, "rpc rejected")
	assert.Contains(t, out, `"code":"NotFound"`)
}

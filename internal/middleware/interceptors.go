// Package middleware holds the gRPC interceptors every call passes through.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oggyb/mood-buddy/internal/auth"
	"github.com/oggyb/mood-buddy/internal/logger"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// AuthUnaryInterceptor requires a valid bearer token on every method not
// listed in public and attaches the caller's claims to the context.
func AuthUnaryInterceptor(v TokenVerifier, public map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if public[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}
		header := md.Get("authorization")
		if len(header) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing authorization header")
		}
		token := strings.TrimSpace(strings.TrimPrefix(header[0], "Bearer"))
		if token == "" {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token")
		}

		claims, err := v.VerifyToken(token)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "unauthenticated: %v", err)
		}
		return handler(auth.NewContext(ctx, claims), req)
	}
}

// LoggingUnaryInterceptor gives each call a request-scoped logger tagged
// with a request id and the method, and logs the outcome.
func LoggingUnaryInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID := uuid.NewString()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
				requestID = ids[0]
			}
		}

		log := base.With("request_id", requestID, "method", info.FullMethod)
		start := time.Now()
		resp, err := handler(logger.NewContext(ctx, log), req)

		code := status.Code(err)
		attrs := []any{"code", code.String(), "duration_ms", time.Since(start).Milliseconds()}
		if c, ok := auth.FromContext(ctx); ok {
			attrs = append(attrs, "user_id", c.UserID)
		}
		switch code {
		case codes.OK:
			log.Debug("rpc completed", attrs...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			log.Error("rpc failed", append(attrs, "err", err)...)
		default:
			log.Info("rpc rejected", append(attrs, "err", err)...)
		}
		return resp, err
	}
}

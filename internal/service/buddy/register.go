package buddy

import (
	"google.golang.org/grpc"

	"github.com/oggyb/mood-buddy/internal/app"
)

// Registrar ties the Buddy service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Buddy service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Buddy service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterBuddyServiceServer(s, NewBuddyService(r.appCtx))
}

// RateLimitedMethods are throttled per caller.
func RateLimitedMethods() map[string]bool {
	return map[string]bool{FullMethod("LogMood"): true}
}

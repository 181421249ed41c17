package grpcx

import (
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// DialOptions tunes an in-cluster client connection.
type DialOptions struct {
	// Credentials replaces the default plaintext transport.
	Credentials grpc.DialOption
	// UserAgent names the calling service in peer logs.
	UserAgent string
	// KeepaliveTime pings idle connections; zero keeps 30s.
	KeepaliveTime time.Duration
}

func (o DialOptions) dialOptions() []grpc.DialOption {
	creds := o.Credentials
	if creds == nil {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	ka := o.KeepaliveTime
	if ka <= 0 {
		ka = 30 * time.Second
	}
	opts := []grpc.DialOption{
		creds,
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(UnaryClientRequestIDInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: ka, Timeout: 5 * time.Second}),
	}
	if o.UserAgent != "" {
		opts = append(opts, grpc.WithUserAgent(o.UserAgent))
	}
	return opts
}

// Dial returns a lazily connecting client; an unreachable peer shows up on the
// first RPC, so readiness probes report it rather than startup failing.
func Dial(addr string, opts DialOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, append(opts.dialOptions(), extra...)...)
}

package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewUnaryAuthInterceptor returns a gRPC unary interceptor that extracts and validates
// a Bearer JWT from incoming metadata and injects the Principal into the context.
// Methods listed in allowUnauthenticated will bypass authentication (e.g., health checks).
func NewUnaryAuthInterceptor(secret string, allowUnauthenticated ...string) grpc.UnaryServerInterceptor {
	allow := make(map[string]struct{}, len(allowUnauthenticated))
	for _, m := range allowUnauthenticated {
		allow[strings.TrimSpace(m)] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		if _, ok := allow[serviceOf(info.FullMethod)]; ok {
			return handler(ctx, req)
		}
		p, err := ParseFromMD(ctx, secret)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "auth error: %v", err)
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

// serviceOf returns "/pkg.Service/" for "/pkg.Service/Method" so whole
// services can be allowlisted.
func serviceOf(fullMethod string) string {
	i := strings.LastIndex(fullMethod, "/")
	if i <= 0 {
		return fullMethod
	}
	return fullMethod[:i+1]
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing principal")
	}
	return p, nil
}

// RequireKind ensures the principal has one of the given kinds.
func RequireKind(ctx context.Context, kinds ...string) (*Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if p.Kind == strings.ToLower(k) {
			return p, nil
		}
	}
	return nil, status.Errorf(codes.PermissionDenied, "only %s can perform this action", strings.Join(kinds, " or "))
}

// RequireDispatch ensures the caller is the fleet dispatcher.
func RequireDispatch(ctx context.Context) (*Principal, error) {
	return RequireKind(ctx, KindDispatch)
}

// RequireDroneFor ensures the caller is the drone droneID itself or the dispatcher.
func RequireDroneFor(ctx context.Context, droneID string) (*Principal, error) {
	p, err := RequireKind(ctx, KindDrone, KindDispatch)
	if err != nil {
		return nil, err
	}
	if p.Kind == KindDrone && p.Name != droneID {
		return nil, status.Error(codes.PermissionDenied, "drones may only report for themselves")
	}
	return p, nil
}

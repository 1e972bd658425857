package auth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"letDrone/internal/testutil"
)

func TestRequireKindAndHelpers(t *testing.T) {
	ctx := WithPrincipal(context.Background(), &Principal{Name: "d1", Kind: KindDrone})
	if _, err := RequireDroneFor(ctx, "d1"); err != nil {
		t.Fatalf("RequireDroneFor own id: %v", err)
	}
	if _, err := RequireDroneFor(ctx, "d2"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied for other drone, got %v", err)
	}
	if _, err := RequireDispatch(ctx); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected dispatch rejection for drone, got %v", err)
	}

	dctx := WithPrincipal(context.Background(), &Principal{Name: "ops", Kind: KindDispatch})
	if _, err := RequireDroneFor(dctx, "d2"); err != nil {
		t.Fatalf("dispatch may report for any drone: %v", err)
	}
	if _, err := RequirePrincipal(context.Background()); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without principal, got %v", err)
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	secret := "s3cr3t"
	interceptor := NewUnaryAuthInterceptor(secret, "/grpc.health.v1.Health/")

	hCalled := false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, func(ctx context.Context, req any) (any, error) {
		hCalled = true
		if _, ok := FromContext(ctx); ok {
			t.Fatalf("expected no principal on allowlisted path")
		}
		return 123, nil
	})
	if err != nil || !hCalled {
		t.Fatalf("allowlisted handler err=%v called=%v", err, hCalled)
	}

	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/letdrone.fleet.v1.FleetService/AdvanceDelivery"}, func(ctx context.Context, req any) (any, error) {
		t.Fatalf("handler must not run without token")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	tok := testutil.GenerateJWTHS256(t, secret, "ops", KindDispatch)
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	_, err = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/letdrone.fleet.v1.FleetService/AdvanceDelivery"}, func(ctx context.Context, req any) (any, error) {
		p, ok := FromContext(ctx)
		if !ok || p.Name != "ops" || p.Kind != KindDispatch {
			t.Fatalf("principal not injected: %+v ok=%v", p, ok)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor auth path: %v", err)
	}
}

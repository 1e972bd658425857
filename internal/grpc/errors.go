package grpcserver

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"letDrone/internal/apperrors"
)

var kindCodes = map[apperrors.Kind]codes.Code{
	apperrors.KindValidation:     codes.InvalidArgument,
	apperrors.KindBadInput:       codes.InvalidArgument,
	apperrors.KindAuthentication: codes.Unauthenticated,
	apperrors.KindAuthorization:  codes.PermissionDenied,
	apperrors.KindPrecondition:   codes.FailedPrecondition,
	apperrors.KindNotFound:       codes.NotFound,
	apperrors.KindConflict:       codes.Aborted,
	apperrors.KindUnavailable:    codes.Unavailable,
	apperrors.KindTimeout:        codes.DeadlineExceeded,
}

// toStatus converts a service error into a gRPC status. Errors that already
// carry a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, ok := kindCodes[apperrors.KindOf(err)]
	if !ok {
		return status.Error(codes.Internal, apperrors.MessageOf(err))
	}
	return status.Error(code, apperrors.MessageOf(err))
}

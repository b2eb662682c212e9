package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jonathan/study-resources/internal/apperr"
)

// Capability and role named in permission errors.
const (
	generateCapability = "generativelanguage.models.generateContent"
	generateRole       = "roles/aiplatform.user"
)

// classify maps a provider error onto the taxonomy: *apperr.FatalError,
// *apperr.ProtocolError or *apperr.TransientError. Anything not recognized as
// permission or protocol is treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		fatal    *apperr.FatalError
		protocol *apperr.ProtocolError
	)
	if errors.As(err, &fatal) || errors.As(err, &protocol) {
		return err
	}

	if code := httpStatus(err); code != 0 {
		switch {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return permissionDenied(err)
		case code == http.StatusTooManyRequests:
			return &apperr.TransientError{Kind: apperr.KindRateLimited, Cause: err}
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return &apperr.TransientError{Kind: apperr.KindTimeout, Cause: err}
		default:
			return &apperr.TransientError{Kind: apperr.KindNetwork, Cause: err}
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return permissionDenied(err)
		case codes.ResourceExhausted:
			return &apperr.TransientError{Kind: apperr.KindRateLimited, Cause: err}
		case codes.DeadlineExceeded:
			return &apperr.TransientError{Kind: apperr.KindTimeout, Cause: err}
		default:
			return &apperr.TransientError{Kind: apperr.KindNetwork, Cause: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.TransientError{Kind: apperr.KindTimeout, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &apperr.TransientError{Kind: apperr.KindTimeout, Cause: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "permission_denied"):
		return permissionDenied(err)
	case strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return &apperr.TransientError{Kind: apperr.KindRateLimited, Cause: err}
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return &apperr.TransientError{Kind: apperr.KindTimeout, Cause: err}
	default:
		return &apperr.TransientError{Kind: apperr.KindNetwork, Cause: err}
	}
}

// httpStatus extracts an HTTP status code from the provider SDK error types.
func httpStatus(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode
	}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return aerr.StatusCode
	}
	return 0
}

func permissionDenied(err error) *apperr.FatalError {
	return &apperr.FatalError{Capability: generateCapability, Role: generateRole, Cause: err}
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"

	"elicit/internal/services"
)

// classify tags a vendor or transport error with the failure taxonomy marker.
func classify(err error, stage, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrUnreachable, stage, operation, "timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrUnknown, stage, operation, "canceled", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return services.Wrap(markerForStatus(apiErr.HTTPStatusCode), stage, operation,
			fmt.Sprintf("status %d", apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return services.Wrap(markerForStatus(reqErr.HTTPStatusCode), stage, operation,
			fmt.Sprintf("status %d", reqErr.HTTPStatusCode), err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return services.Wrap(services.ErrUnreachable, stage, operation, "transport error", err)
	}
	return services.Wrap(services.ErrUnknown, stage, operation, "", err)
}

func markerForStatus(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return services.ErrRejected
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return services.ErrQuota
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return services.ErrUnreachable
	default:
		return services.ErrUnknown
	}
}

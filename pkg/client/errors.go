package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/transport"
)

// classifySendError maps a transport failure to an error kind.
// Context cancellation and oversized bodies are never retried; every other
// network failure (timeout, reset, refused, unexpected EOF) is transient.
func classifySendError(ctx context.Context, err error) apierror.Kind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return apierror.KindCancelled
	}
	if errors.Is(err, transport.ErrBodyTooLarge) {
		return apierror.KindInvalidResponse
	}
	return apierror.KindTransientNetwork
}

// classifyStatus maps a non-success, non-challenge response to an error kind.
func classifyStatus(policy RetryPolicy, resp *transport.Response) apierror.Kind {
	if !policy.retryableStatus(resp.StatusCode) {
		return apierror.KindUpstreamRejected
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return apierror.KindRateLimited
	}
	return apierror.KindTransientNetwork
}

// completed reports whether a response ends the retry loop successfully.
func completed(resp *transport.Response) bool {
	return resp.IsSuccess() || resp.StatusCode == http.StatusNotModified
}

// statusError builds the error for a failed response.
func statusError(kind apierror.Kind, a *transport.Attempt, resp *transport.Response) *apierror.Error {
	msg := apierror.Detail(resp.Body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &apierror.Error{
		Kind:       kind,
		Method:     a.Method,
		Endpoint:   a.Path,
		StatusCode: resp.StatusCode,
		Attempts:   a.Number,
		Message:    msg,
	}
}

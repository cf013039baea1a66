package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"vip/internal/auth"
	"vip/internal/dispatch"
	vipErrors "vip/internal/errors"
	"vip/internal/runs"
)

const (
	trainSucceeded = "Training successful!!!"
	trainFailed    = "Error Occurred! "
)

// handleTrain handles GET and POST /train. The trainer runs on a dispatcher
// worker; this goroutine only waits for its result.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Check(r); err != nil {
		s.logger.Warn("Training request rejected",
			"reason", err.Error(),
			"remoteAddr", r.RemoteAddr,
			"requestID", GetRequestID(r.Context()),
		)
		w.Header().Set("WWW-Authenticate", `Bearer realm="vip"`)
		message := "Invalid training token"
		if errors.Is(err, auth.ErrMissingToken) {
			message = "Training token required"
		}
		WriteVipError(w, vipErrors.New(vipErrors.Unauthorized, message, nil))
		return
	}

	if allowed, retryAfter := s.limiter.Allow(clientKey(r)); !allowed {
		s.metrics.RecordRateLimitExceeded()
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		WriteVipError(w, vipErrors.New(vipErrors.RateLimited, "Too many training requests", nil).
			WithDetails(map[string]int{"retryAfter": retryAfter}))
		return
	}

	_, err := s.dispatcher.Do(r.Context(), runs.KindTrain, func(ctx context.Context) (any, error) {
		return nil, s.trainer.Run(ctx)
	})
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Warn("Client left before training finished",
				"requestID", GetRequestID(r.Context()),
			)
			return
		}

		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		WriteText(w, trainFailed+err.Error(), status)
		return
	}

	WriteText(w, trainSucceeded, http.StatusOK)
}

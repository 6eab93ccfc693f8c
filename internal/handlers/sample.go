package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimiter/internal/analytics"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"go.uber.org/zap"
)

// SampleHandler serves the demo endpoints that sit behind the rate limiter.
type SampleHandler struct {
	stats  analytics.StatsReader
	logger *zap.Logger
}

// NewSampleHandler creates a new sample handler reporting from stats.
func NewSampleHandler(stats analytics.StatsReader, logger *zap.Logger) *SampleHandler {
	return &SampleHandler{stats: stats, logger: logger}
}

func (h *SampleHandler) Ping(_ context.Context, _ *struct{}) (*MessageResponse, error) {
	resp := &MessageResponse{}
	resp.Body.Message = "Pong"

	return resp, nil
}

func (h *SampleHandler) HelloWorld(ctx context.Context, _ *struct{}) (*MessageResponse, error) {
	resp := &MessageResponse{}
	resp.Body.Message = "Hello, World!"

	if attrs, ok := ratelimit.AttributesFromContext(ctx); ok && attrs.UserID != "" {
		resp.Body.Message = "Hello, " + attrs.UserID + "!"
	}

	return resp, nil
}

func (h *SampleHandler) Stats(ctx context.Context, _ *struct{}) (*StatsResponse, error) {
	policies, err := h.stats.Snapshot(ctx)
	if err != nil {
		h.logger.Error("failed to read rate limit stats", zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to read stats")
	}

	resp := &StatsResponse{}
	resp.Body.Policies = policies

	for _, p := range policies {
		resp.Body.TotalRequests += p.Total
		resp.Body.AcceptedRequests += p.Accepted
		resp.Body.RejectedRequests += p.Rejected
	}

	return resp, nil
}

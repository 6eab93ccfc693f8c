package handlers

import "github.com/serroba/ratelimiter/internal/analytics"

// MessageResponse is a plain text greeting wrapped in JSON.
type MessageResponse struct {
	Body struct {
		Message string `doc:"Response message" example:"Pong" json:"message"`
	}
}

// StatsResponse reports how many requests each policy admitted and rejected.
type StatsResponse struct {
	Body struct {
		TotalRequests    int64                   `doc:"Requests evaluated across all policies" json:"totalRequests"`
		AcceptedRequests int64                   `doc:"Requests admitted"                      json:"acceptedRequests"`
		RejectedRequests int64                   `doc:"Requests rejected"                      json:"rejectedRequests"`
		Policies         []analytics.PolicyStats `doc:"Per-policy breakdown"                   json:"policies"`
	}
}

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// wireRecord is the JSON form of a ratelimit.Record as held in Redis.
type wireRecord struct {
	Count           int64     `json:"count"`
	TokensAvailable int64     `json:"tokensAvailable"`
	LastRefillTime  time.Time `json:"lastRefillTime"`
	Expiration      string    `json:"expiration"`
	CreatedAt       time.Time `json:"createdAt"`
}

func encodeRecord(r ratelimit.Record) ([]byte, error) {
	return json.Marshal(wireRecord{
		Count:           r.Count,
		TokensAvailable: r.TokensAvailable,
		LastRefillTime:  r.LastRefillTime,
		Expiration:      r.Expiration.String(),
		CreatedAt:       r.CreatedAt,
	})
}

func decodeRecord(data []byte) (ratelimit.Record, error) {
	var w wireRecord

	if err := json.Unmarshal(data, &w); err != nil {
		return ratelimit.Record{}, fmt.Errorf("decode record: %w", err)
	}

	expiration, err := time.ParseDuration(w.Expiration)
	if err != nil {
		return ratelimit.Record{}, fmt.Errorf("decode record expiration: %w", err)
	}

	return ratelimit.Record{
		Count:           w.Count,
		TokensAvailable: w.TokensAvailable,
		LastRefillTime:  w.LastRefillTime,
		CreatedAt:       w.CreatedAt,
		Expiration:      expiration,
	}, nil
}

package models

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error      string `json:"error"` // always "rate_limited"
	RetryAfter int    `json:"retryAfter"`
}

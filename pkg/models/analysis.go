package models

// Rating is the normalized strength of a prompt.
type Rating string

const (
	RatingWeak     Rating = "weak"
	RatingModerate Rating = "moderate"
	RatingStrong   Rating = "strong"
	RatingUnknown  Rating = "unknown"
)

// Analysis is the result of scoring a prompt and proposing improvements.
type Analysis struct {
	RequestID   string     `json:"request_id"`
	Provider    ProviderID `json:"provider"`
	Model       string     `json:"model"`
	Rating      Rating     `json:"rating"`
	RawRating   string     `json:"raw_rating"`
	Suggestions []string   `json:"suggestions"`
	Rewrite     string     `json:"rewrite"`
	LatencyMs   int64      `json:"latency_ms"`
}

package model

// CreateLinkRequest represents the request body for creating a short link.
// Validity is kept loosely typed: anything that is not a positive integer
// number of minutes falls back to the configured default.
type CreateLinkRequest struct {
	URL       string `json:"url"`
	Validity  any    `json:"validity,omitempty"`
	ShortCode string `json:"shortcode,omitempty"`
}

// ClickContext carries the optional request metadata recorded with a click
type ClickContext struct {
	Referer string
	IP      string
}

// CreateLinkResponse represents the response for a created short link
type CreateLinkResponse struct {
	ShortCode string `json:"-"`
	ShortLink string `json:"shortLink"`
	Expiry    string `json:"expiry"`
}

// ClickResponse is one entry of a link's click log
type ClickResponse struct {
	Timestamp string `json:"ts"`
	Referer   string `json:"referer,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// LinkDetailResponse represents the analytics detail of a single link
type LinkDetailResponse struct {
	Clicks    int64           `json:"clicks"`
	URL       string          `json:"url"`
	CreatedAt string          `json:"createdAt"`
	Expiry    string          `json:"expiry"`
	ClickLog  []ClickResponse `json:"clickLog"`
}

// LinkSummary is one row of the paginated link listing
type LinkSummary struct {
	ShortCode string `json:"shortCode"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
	Expiry    string `json:"expiry"`
	Clicks    int64  `json:"clicks"`
}

// LinkListResponse represents one page of links, newest first
type LinkListResponse struct {
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int64         `json:"total"`
	Items []LinkSummary `json:"items"`
}

// SummaryResponse represents service-wide link statistics
type SummaryResponse struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
	Clicks  int64 `json:"clicks"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

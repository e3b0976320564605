package server

// SignInRequest carries the bearer token to establish a session with.
type SignInRequest struct {
	Token string `json:"token" example:"dev-token"`
}

// StartAnalysisRequest starts an analysis run for a website URL.
type StartAnalysisRequest struct {
	URL  string `json:"url" example:"shop.example.com"`
	Mode string `json:"mode" example:"multi-page"` // "multi-page" (default) or "single-page"
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}

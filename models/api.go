package models

// ScrapeTriggerRequest is the body of POST /api/v1/scrape.
type ScrapeTriggerRequest struct {
	// NumStories is the number of top stories to scrape. Zero means "use the
	// configured default".
	NumStories int `json:"num_stories"`
}

// ScrapeTriggerResponse is returned immediately after the execution is
// started (fire-and-forget).
type ScrapeTriggerResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// StoriesResponse envelopes GET /api/v1/stories.
type StoriesResponse struct {
	Stories []Story `json:"stories"`
	Count   int     `json:"count"`
}

// RunsResponse envelopes GET /api/v1/runs.
type RunsResponse struct {
	Runs  []ScrapeRun `json:"runs"`
	Count int         `json:"count"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

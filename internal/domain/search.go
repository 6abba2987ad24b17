package domain

// SearchSummary is the uniform shape every search backend normalizes into,
// regardless of whether the results came from an API or a scraped page.
type SearchSummary struct {
	Year     string `json:"year"`
	Subtype  string `json:"subtype"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Link     string `json:"link"`
	ID       string `json:"id"`
}

// SearchResponse wraps a backend's results. Backend failures of any kind
// (timeout, non-2xx, zero results) are normalized into Success=false with a
// human-readable Error; Data is never nil on the wire.
type SearchResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    []SearchSummary `json:"data"`
}

// SearchFailure builds a normalized failed search response.
func SearchFailure(message string) SearchResponse {
	return SearchResponse{Success: false, Error: message, Data: []SearchSummary{}}
}

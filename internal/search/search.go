package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Status      string `json:"status"`
}

// Query describes a search request. WorkspaceID is mandatory: results
// never cross the workspace boundary.
type Query struct {
	Text        string
	WorkspaceID string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Status      string `json:"status"`
}

package search

// Result is a single search hit returned to the caller.
type Result struct {
	ResumeID string `json:"resumeId"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request. OwnerID is always set: a user only
// searches their own resumes.
type Query struct {
	OwnerID string
	Text    string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over resumes.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ResumeRecord is the data we index per resume: title plus the content
// flattened to plain text.
type ResumeRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

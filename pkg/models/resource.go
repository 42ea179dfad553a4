package models

// Resource is a single discovered educational resource.
type Resource struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// AnalysisPayload is the cacheable sub-result of the pipeline's first stage:
// the course/book analysis that changes far less often than the discovered
// resources themselves.
type AnalysisPayload struct {
	TextbookTitle  string `json:"textbook_title"`
	TextbookAuthor string `json:"textbook_author"`
	TextbookSource string `json:"textbook_source,omitempty"`
	RawAnalysis    string `json:"raw_analysis,omitempty"`
}

package semanticscholar

// BatchRequest is the body of a POST /paper/batch call.
type BatchRequest struct {
	IDs []string `json:"ids"`
}

// PaperResult is one paper in a Semantic Scholar Graph API response. Batch
// responses contain a null entry for every identifier that was not found.
type PaperResult struct {
	PaperID       string       `json:"paperId"`
	Title         string       `json:"title"`
	CitationCount int          `json:"citationCount"`
	ExternalIDs   *ExternalIDs `json:"externalIds,omitempty"`
}

// ExternalIDs holds the external identifiers Semantic Scholar knows for a
// paper.
type ExternalIDs struct {
	DOI   string `json:"DOI,omitempty"`
	ArXiv string `json:"ArXiv,omitempty"`
}

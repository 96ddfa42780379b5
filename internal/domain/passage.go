package domain

// RetrievedPassage is one hit from the retrieval index.
type RetrievedPassage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

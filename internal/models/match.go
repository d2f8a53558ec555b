package models

// ModelMatch is one candidate returned by a part-to-part match query.
// MatchPercentage scores how much of the source model is covered by the
// candidate; ReverseMatchPercentage scores the opposite direction. Both are
// fractions in [0, 1].
type ModelMatch struct {
	MatchedModel           Model   `json:"matchedModel"`
	MatchPercentage        float64 `json:"matchPercentage"`
	ReverseMatchPercentage float64 `json:"reverseMatchPercentage"`
}

// MatchPage is one page of a part-to-part match listing.
type MatchPage struct {
	Matches  []ModelMatch `json:"matches"`
	PageData PageData     `json:"pageData"`
}

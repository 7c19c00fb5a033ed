package domain

// ResponseShape tags which of the two classifier payload layouts was received.
type ResponseShape string

const (
	ShapeClean ResponseShape = "clean"
	ShapeNoisy ResponseShape = "noisy"
)

// ClassifierField is one extracted attribute. Score is only present in the
// noisy layout.
type ClassifierField struct {
	Value *string
	Score *float64
}

// ClassifierResponse is the decoded classifier payload before normalization.
type ClassifierResponse struct {
	Shape      ResponseShape
	Category   ClassifierField
	DocID      ClassifierField
	Subject    ClassifierField
	DocDate    ClassifierField
	Confidence *float64
}

// ClassificationRequest identifies the document sent to the classifier.
type ClassificationRequest struct {
	Token      string
	DocumentID string
	Filename   string
}

// Classification is the normalized result the routing policy works on.
type Classification struct {
	Metadata    Metadata           `json:"metadata"`
	Confidence  float64            `json:"confidence"`
	FieldScores map[string]float64 `json:"field_scores,omitempty"`
}

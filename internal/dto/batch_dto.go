package dto

// BatchQuestion is one line of a batch input file. IDs are optional and
// assigned when missing; format_hint is constrained to the supported set.
type BatchQuestion struct {
	ID         string `json:"id" validate:"omitempty"`
	Question   string `json:"question" validate:"required"`
	FormatHint string `json:"format_hint" validate:"required,oneof=int float string object list"`
}

// BatchResult is one line of the batch output file. Citations is never
// null in the serialized form, even when empty.
type BatchResult struct {
	ID          string   `json:"id"`
	FinalAnswer any      `json:"final_answer"`
	SQL         string   `json:"sql"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
}

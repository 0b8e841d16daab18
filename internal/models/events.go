package models

// CandidateFact is a fact statement proposed by the upstream extraction
// pipeline, together with the dialogue context it was derived from. The
// source context drives the importance heuristic at ingestion time.
type CandidateFact struct {
	FactText      string   `json:"fact_text"`
	SubjectIDs    []string `json:"subject_ids,omitempty"`
	SourceContext string   `json:"source_context,omitempty"`
}

// ChatMessage is one dialogue turn appended to the short-term history buffer.
type ChatMessage struct {
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	UserName  string `json:"user_name,omitempty"`
	Timestamp string `json:"timestamp"`
}

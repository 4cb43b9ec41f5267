package task

type DocumentRejectedTask struct {
	RunID         string   `json:"run_id"`
	DocumentID    string   `json:"document_id"`
	Kind          string   `json:"kind"`
	MissingFields []string `json:"missing_fields"`
	Violations    []string `json:"violations,omitempty"`
}

func (t *DocumentRejectedTask) TaskType() string {
	return "DocumentRejectedTask"
}

func (t *DocumentRejectedTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}

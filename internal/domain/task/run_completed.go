package task

// RunCompletedTask tells downstream consumers (site builder, app sync) that a fresh set of documents is on disk.
type RunCompletedTask struct {
	RunID             string `json:"run_id"`
	OutputRoot        string `json:"output_root"`
	ProductsEmitted   int    `json:"products_emitted"`
	CategoriesEmitted int    `json:"categories_emitted"`
	Rejections        int    `json:"rejections"`
	FinishedAt        string `json:"finished_at"`
}

func (t *RunCompletedTask) TaskType() string {
	return "RunCompletedTask"
}

func (t *RunCompletedTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}

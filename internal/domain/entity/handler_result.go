package entity

// HandlerStatus describes how a handler run ended. Handlers catch their own
// faults; the orchestrator only ever sees a HandlerResult.
type HandlerStatus string

const (
	HandlerOK      HandlerStatus = "ok"
	HandlerPartial HandlerStatus = "partial" // Some action targets failed
	HandlerFailed  HandlerStatus = "failed"  // Graceful message in Text, cause in Diagnostics
)

// HandlerResult is the structured outcome of a handler dispatch.
type HandlerResult struct {
	Text        string            `json:"text"`
	Status      HandlerStatus     `json:"status"`
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
}

// Failed reports whether the run ended in outright failure.
func (r HandlerResult) Failed() bool {
	return r.Status == HandlerFailed
}

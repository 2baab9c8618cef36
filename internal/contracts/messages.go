package contracts

const (
	// MessageTypeRender updates the browser with a rendered HTML fragment.
	MessageTypeRender = "render"
)

// RenderMessage carries a rendered fragment and its revision to the browser.
// Revisions increase monotonically; clients ignore anything older than what
// they already displayed.
type RenderMessage struct {
	Type string `json:"type"`
	HTML string `json:"html"`
	Rev  uint64 `json:"rev"`
}

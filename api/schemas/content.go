// api/schemas/content.go
package schemas

// Content block types understood by the outer protocol dispatcher.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// ContentBlock is one element of a tool call's ordered output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Data carries base64-encoded binary content for image blocks.
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the finished projection of one tool invocation: an ordered
// content-block list plus an error flag. The flag distinguishes a failed tool
// call from a successful call whose text happens to mention errors.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

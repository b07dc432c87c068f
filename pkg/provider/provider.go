// Package provider defines the remote vision and text-generation clients and
// their shared request/response types.
package provider

import "context"

// Request represents a text-generation request.
type Request struct {
	Model       string
	Prompt      string
	Temperature float32
	MaxTokens   int32
	APIKey      string // Injected from the key pool
}

// Response represents a complete text-generation response.
type Response struct {
	Text         string
	PromptTokens int32
	OutputTokens int32
}

// Provider is implemented by every text-generation backend.
type Provider interface {
	// Name returns a short identifier such as "azure" or "openai".
	Name() string

	// Infer performs one completion call. Errors are *apierr.Error values so
	// callers can tell throttling from other failures. A response without any
	// generated choice is reported as an error.
	Infer(ctx context.Context, req Request) (Response, error)
}

// Vision features understood by the image analysis API.
const (
	FeatureCaption = "caption"
	FeatureTags    = "tags"
	FeatureRead    = "read"
)

// VisionRequest selects what the image analysis API should compute.
type VisionRequest struct {
	Features             []string
	Language             string
	GenderNeutralCaption bool
}

// VisionResult is the image analysis response body. Sub-results are nil when
// the feature was not requested or nothing was detected.
type VisionResult struct {
	ModelVersion  string         `json:"modelVersion,omitempty"`
	CaptionResult *CaptionResult `json:"captionResult,omitempty"`
	TagsResult    *TagsResult    `json:"tagsResult,omitempty"`
	ReadResult    *ReadResult    `json:"readResult,omitempty"`
}

// CaptionResult is the generated caption.
type CaptionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TagsResult lists detected tags in provider order.
type TagsResult struct {
	Values []Tag `json:"values"`
}

// Tag is one detected tag.
type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ReadResult is the OCR output. Older API versions return the full text in
// Content; newer ones return Blocks of Lines.
type ReadResult struct {
	Content string      `json:"content,omitempty"`
	Blocks  []ReadBlock `json:"blocks,omitempty"`
}

// ReadBlock is one detected text block.
type ReadBlock struct {
	Lines []ReadLine `json:"lines"`
}

// ReadLine is one line of detected text.
type ReadLine struct {
	Text string `json:"text"`
}

// VisionProvider analyzes a single image.
type VisionProvider interface {
	Name() string
	Analyze(ctx context.Context, image []byte, req VisionRequest) (VisionResult, error)
}

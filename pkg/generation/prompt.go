// Package generation turns an analysis record into sanitized descriptive
// text using a text-generation backend.
package generation

import (
	"fmt"
	"strings"

	"github.com/abdhe/frame-insight/pkg/analysis"
)

const promptTemplate = "Here is the result of the image analysis. Caption: %s. Tags: %s. Text detected: %s. " +
	"Provide constructive insights about the image: a short summary followed by helpful observations."

// BuildPrompt renders the generation prompt for rec. The same record always
// yields the same prompt.
func BuildPrompt(rec analysis.Record) string {
	rec = rec.Complete()

	tags := analysis.NoTags
	if len(rec.Tags) > 0 {
		tags = strings.Join(rec.Tags, ", ")
	}
	return fmt.Sprintf(promptTemplate, rec.Caption, tags, rec.OCRText)
}

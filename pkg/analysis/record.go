// Package analysis runs the two-tier image analysis fallback chain and
// normalizes provider output into a canonical record.
package analysis

import (
	"strings"

	"github.com/abdhe/frame-insight/pkg/provider"
)

// Sentinels used when the provider omits a field.
const (
	NoCaption = "No caption detected"
	NoTags    = "No tags detected"
	NoText    = "No text detected"
)

// Record is the canonical analysis result. Every field is always populated;
// Tags is an empty, non-nil slice when nothing was detected.
type Record struct {
	Caption string   `json:"caption"`
	Tags    []string `json:"tags"`
	OCRText string   `json:"ocr_text"`
}

// Normalize maps a raw vision result onto a Record. OCR output is only read
// when includeText is set.
func Normalize(res provider.VisionResult, includeText bool) Record {
	rec := Record{
		Caption: NoCaption,
		Tags:    []string{},
		OCRText: NoText,
	}

	if res.CaptionResult != nil && strings.TrimSpace(res.CaptionResult.Text) != "" {
		rec.Caption = res.CaptionResult.Text
	}

	if res.TagsResult != nil {
		for _, tag := range res.TagsResult.Values {
			if tag.Name != "" {
				rec.Tags = append(rec.Tags, tag.Name)
			}
		}
	}

	if includeText {
		if text := readText(res.ReadResult); text != "" {
			rec.OCRText = text
		}
	}

	return rec
}

// Empty reports whether r carries no caption, tags or text at all.
func (r Record) Empty() bool {
	return strings.TrimSpace(r.Caption) == "" && len(r.Tags) == 0 && strings.TrimSpace(r.OCRText) == ""
}

// Complete fills missing fields of a client-supplied record with the
// sentinels so it can be fed to generation.
func (r Record) Complete() Record {
	if strings.TrimSpace(r.Caption) == "" {
		r.Caption = NoCaption
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if strings.TrimSpace(r.OCRText) == "" {
		r.OCRText = NoText
	}
	return r
}

func readText(rr *provider.ReadResult) string {
	if rr == nil {
		return ""
	}
	if content := strings.TrimSpace(rr.Content); content != "" {
		return content
	}

	var lines []string
	for _, block := range rr.Blocks {
		for _, line := range block.Lines {
			if t := strings.TrimSpace(line.Text); t != "" {
				lines = append(lines, t)
			}
		}
	}
	return strings.Join(lines, " ")
}

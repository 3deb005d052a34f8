package translation

import (
	"context"
	"fmt"
	"strings"
)

// Detector returns the ISO 639-1 code of text, or "" when unsure.
type Detector func(text string) string

// SkippingProvider passes through segments that are already written in the
// target language and forwards the rest to the wrapped provider.
type SkippingProvider struct {
	next   Provider
	detect Detector
}

func NewSkippingProvider(next Provider, detect Detector) *SkippingProvider {
	return &SkippingProvider{next: next, detect: detect}
}

func (p *SkippingProvider) Name() string {
	if p == nil || p.next == nil {
		return ""
	}
	return p.next.Name()
}

// ModelName reports the wrapped provider's model, if it has one.
func (p *SkippingProvider) ModelName() string {
	if p == nil {
		return ""
	}
	if namer, ok := p.next.(modelNamer); ok {
		return namer.ModelName()
	}
	return ""
}

func (p *SkippingProvider) Ready(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("skipping provider is nil")
	}
	return CheckReady(ctx, p.next)
}

func (p *SkippingProvider) Translate(ctx context.Context, req Request) (*Response, error) {
	if p == nil || p.next == nil {
		return nil, fmt.Errorf("skipping provider is not initialized")
	}
	if p.detect == nil {
		return p.next.Translate(ctx, req)
	}

	targetLang := req.TargetLanguage.Language()
	forward := make([]int, 0, len(req.Segments))
	for i, seg := range req.Segments {
		if !shouldSkipTranslationTask(p.detect(seg.Text), targetLang) {
			forward = append(forward, i)
		}
	}
	if len(forward) == len(req.Segments) {
		return p.next.Translate(ctx, req)
	}

	out := &Response{
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Segments:       make([]TranslatedSegment, len(req.Segments)),
		Metadata:       cloneMap(req.Metadata),
	}
	for i, seg := range req.Segments {
		out.Segments[i] = TranslatedSegment{
			Idx:            cloneString(seg.Idx),
			Text:           seg.Text,
			TranslatedText: seg.Text,
			Metadata:       cloneMap(seg.Metadata),
		}
	}
	if len(forward) == 0 {
		return out, nil
	}

	sub := req
	sub.Segments = make([]Segment, 0, len(forward))
	for _, i := range forward {
		sub.Segments = append(sub.Segments, req.Segments[i])
	}
	resp, err := p.next.Translate(ctx, sub)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Segments) != len(forward) {
		return nil, fmt.Errorf("provider %s returned %d segments for %d inputs", p.next.Name(), segmentCount(resp), len(forward))
	}
	for j, i := range forward {
		out.Segments[i].TranslatedText = resp.Segments[j].TranslatedText
	}
	return out, nil
}

func shouldSkipTranslationTask(sourceLang, targetLang string) bool {
	source := strings.ToLower(strings.TrimSpace(sourceLang))
	target := strings.ToLower(strings.TrimSpace(targetLang))
	if source == "" || source == "und" || target == "" {
		return false
	}
	return source == target
}

func segmentCount(resp *Response) int {
	if resp == nil {
		return 0
	}
	return len(resp.Segments)
}

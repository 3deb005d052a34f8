package translation

import (
	"context"
	"fmt"
	"time"
)

// LoopbackProvider simulates an engine: every segment is echoed with the
// target locale appended. It is the default provider for local setups.
type LoopbackProvider struct {
	latency time.Duration
}

func NewLoopbackProvider(latency time.Duration) *LoopbackProvider {
	if latency < 0 {
		latency = 0
	}
	return &LoopbackProvider{latency: latency}
}

func (p *LoopbackProvider) Name() string {
	return "loopback"
}

func (p *LoopbackProvider) Translate(ctx context.Context, req Request) (*Response, error) {
	if p == nil {
		return nil, fmt.Errorf("loopback provider is nil")
	}

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	segments := make([]TranslatedSegment, 0, len(req.Segments))
	for _, seg := range req.Segments {
		segments = append(segments, TranslatedSegment{
			Idx:            cloneString(seg.Idx),
			Text:           seg.Text,
			TranslatedText: fmt.Sprintf("%s [%s]", seg.Text, req.TargetLanguage),
			Metadata:       cloneMap(seg.Metadata),
		})
	}

	return &Response{
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Segments:       segments,
		Metadata:       cloneMap(req.Metadata),
	}, nil
}

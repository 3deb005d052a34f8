package translation

import (
	"context"
	"strings"
	"testing"
)

func TestShouldSkipTranslationTask(t *testing.T) {
	t.Parallel()

	if !shouldSkipTranslationTask("en", "en") {
		t.Fatalf("expected same language pair to be skipped")
	}
	if shouldSkipTranslationTask("und", "en") {
		t.Fatalf("did not expect und->en to be skipped")
	}
	if shouldSkipTranslationTask("", "en") {
		t.Fatalf("did not expect empty source language to be skipped")
	}
}

func TestSkippingProvider_ForwardsOnlyForeignSegments(t *testing.T) {
	t.Parallel()

	inner := &stubProvider{name: "stub"}
	detect := func(text string) string {
		if strings.HasPrefix(text, "Guten") {
			return "de"
		}
		return "en"
	}
	provider := NewSkippingProvider(inner, detect)

	req := Request{
		SourceLanguage: "en",
		TargetLanguage: "de",
		Segments: []Segment{
			{Idx: strPtr("1"), Text: "Hello world"},
			{Idx: strPtr("2"), Text: "Guten Morgen"},
			{Idx: strPtr("3"), Text: "Good night"},
		},
	}

	resp, err := provider.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("unexpected provider call count: got %d want 1", inner.calls)
	}
	if got := len(inner.lastReq.Segments); got != 2 {
		t.Fatalf("expected 2 forwarded segments, got %d", got)
	}
	if len(resp.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(resp.Segments))
	}
	if resp.Segments[1].TranslatedText != "Guten Morgen" {
		t.Fatalf("expected passthrough for segment 2, got %q", resp.Segments[1].TranslatedText)
	}
	if resp.Segments[2].TranslatedText != "Good night [de]" {
		t.Fatalf("unexpected translation for segment 3: %q", resp.Segments[2].TranslatedText)
	}
	if *resp.Segments[2].Idx != "3" {
		t.Fatalf("expected idx to be preserved, got %q", *resp.Segments[2].Idx)
	}
}

func TestSkippingProvider_AllSkippedDoesNotCallProvider(t *testing.T) {
	t.Parallel()

	inner := &stubProvider{name: "stub"}
	provider := NewSkippingProvider(inner, func(string) string { return "en" })

	resp, err := provider.Translate(context.Background(), Request{
		SourceLanguage: "de",
		TargetLanguage: "en",
		Segments:       []Segment{{Text: "already english"}},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if inner.calls != 0 {
		t.Fatalf("did not expect provider calls, got %d", inner.calls)
	}
	if resp.Segments[0].TranslatedText != "already english" {
		t.Fatalf("unexpected passthrough text: %q", resp.Segments[0].TranslatedText)
	}
}

package translation

import (
	"context"

	"horse.fit/mtgate/internal/locale"
)

// Provider translates an ordered batch of segments between two locales.
type Provider interface {
	Translate(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (*Response, error)

func (f ProviderFunc) Translate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func (f ProviderFunc) Name() string {
	return "func"
}

// Request describes one translation request.
type Request struct {
	SourceLanguage locale.Locale   `json:"sourceLanguage"`
	TargetLanguage locale.Locale   `json:"targetLanguage"`
	Segments       []Segment       `json:"segments"`
	Glossary       []GlossaryEntry `json:"glossary,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// Segment is one unit of source text. Idx is an opaque caller-side index.
type Segment struct {
	Idx      *string        `json:"idx,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type GlossaryEntry struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
}

// Response pairs every source segment with its translation, in request order.
type Response struct {
	SourceLanguage locale.Locale       `json:"sourceLanguage"`
	TargetLanguage locale.Locale       `json:"targetLanguage"`
	Segments       []TranslatedSegment `json:"segments"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
}

type TranslatedSegment struct {
	Idx            *string        `json:"idx,omitempty"`
	Text           string         `json:"text"`
	TranslatedText string         `json:"translatedText"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy so a stored request cannot be mutated by its submitter.
func (r Request) Clone() Request {
	out := Request{
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		Metadata:       cloneMap(r.Metadata),
	}
	if r.Segments != nil {
		out.Segments = make([]Segment, len(r.Segments))
		for i, seg := range r.Segments {
			out.Segments[i] = Segment{
				Idx:      cloneString(seg.Idx),
				Text:     seg.Text,
				Metadata: cloneMap(seg.Metadata),
			}
		}
	}
	if r.Glossary != nil {
		out.Glossary = append([]GlossaryEntry(nil), r.Glossary...)
	}
	return out
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		Metadata:       cloneMap(r.Metadata),
	}
	if r.Segments != nil {
		out.Segments = make([]TranslatedSegment, len(r.Segments))
		for i, seg := range r.Segments {
			out.Segments[i] = TranslatedSegment{
				Idx:            cloneString(seg.Idx),
				Text:           seg.Text,
				TranslatedText: seg.TranslatedText,
				Metadata:       cloneMap(seg.Metadata),
			}
		}
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

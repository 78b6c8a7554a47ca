package model

import (
	"encoding/json"
	"fmt"
)

// ContentType discriminates the closed set of content variants an Item can
// carry. The set is closed deliberately: adding a new variant is a core
// change, not something a provider can smuggle in through metadata.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeHTML     ContentType = "html"
	ContentTypeEmail    ContentType = "email"
	ContentTypeArticle  ContentType = "article"
	ContentTypeVideo    ContentType = "video"
	ContentTypeTrack    ContentType = "track"
	ContentTypeTask     ContentType = "task"
	ContentTypeEvent    ContentType = "event"
	ContentTypeBookmark ContentType = "bookmark"
	ContentTypeGeneric  ContentType = "generic"
)

// Content is implemented by every member of the closed content-variant set.
// Type returns the JSON discriminator written to the "type" field when an
// Item is marshaled.
type Content interface {
	Type() ContentType
}

type TextContent struct {
	Body string `json:"body"`
}

func (TextContent) Type() ContentType { return ContentTypeText }

type MarkdownContent struct {
	Body string `json:"body"`
}

func (MarkdownContent) Type() ContentType { return ContentTypeMarkdown }

type HTMLContent struct {
	Body string `json:"body"`
}

func (HTMLContent) Type() ContentType { return ContentTypeHTML }

type EmailContent struct {
	Subject  string `json:"subject"`
	BodyText string `json:"body_text,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`
	Snippet  string `json:"snippet"`
}

func (EmailContent) Type() ContentType { return ContentTypeEmail }

type ArticleContent struct {
	Summary     string `json:"summary,omitempty"`
	FullContent string `json:"full_content,omitempty"`
}

func (ArticleContent) Type() ContentType { return ContentTypeArticle }

type VideoContent struct {
	Description     string `json:"description"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	ViewCount       *int64 `json:"view_count,omitempty"`
}

func (VideoContent) Type() ContentType { return ContentTypeVideo }

type TrackContent struct {
	Album       string   `json:"album,omitempty"`
	DurationMS  *int     `json:"duration_ms,omitempty"`
	Artists     []string `json:"artists,omitempty"`
}

func (TrackContent) Type() ContentType { return ContentTypeTrack }

type TaskContent struct {
	Body        string `json:"body,omitempty"`
	DueDate     *Date  `json:"due_date,omitempty"`
	IsCompleted bool   `json:"is_completed"`
}

func (TaskContent) Type() ContentType { return ContentTypeTask }

type EventContent struct {
	Description string `json:"description,omitempty"`
	Start       Date   `json:"start"`
	End         Date   `json:"end"`
	Location    string `json:"location,omitempty"`
	IsAllDay    bool   `json:"is_all_day"`
}

func (EventContent) Type() ContentType { return ContentTypeEvent }

type BookmarkContent struct {
	Description string `json:"description,omitempty"`
}

func (BookmarkContent) Type() ContentType { return ContentTypeBookmark }

type GenericContent struct {
	Body string `json:"body,omitempty"`
}

func (GenericContent) Type() ContentType { return ContentTypeGeneric }

// Date wraps time.Time so event/task timestamps round-trip through the
// content_data_json column as RFC3339 strings rather than Go's default
// time.Time JSON shape, matching the rest of the model's timestamp style.
type Date = stringTime

// contentEnvelope is the wire shape used to marshal/unmarshal the Content
// interface: a "type" discriminator alongside the variant's own fields
// flattened into the same object.
type contentEnvelope struct {
	Type ContentType     `json:"type"`
	Data json.RawMessage `json:"-"`
}

// MarshalContent serializes a Content value with its type discriminator,
// used by Item's custom MarshalJSON and by the store's content_data_json column.
func MarshalContent(c Content) ([]byte, error) {
	if c == nil {
		return json.Marshal(contentEnvelope{Type: ContentTypeGeneric})
	}
	fields, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(c.Type())
	m["type"] = typeJSON
	return json.Marshal(m)
}

// UnmarshalContent parses a JSON object carrying a "type" discriminator
// back into the matching concrete Content variant.
func UnmarshalContent(data []byte) (Content, error) {
	var disc struct {
		Type ContentType `json:"type"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, fmt.Errorf("model: decode content discriminator: %w", err)
	}

	var target Content
	switch disc.Type {
	case ContentTypeText:
		target = &TextContent{}
	case ContentTypeMarkdown:
		target = &MarkdownContent{}
	case ContentTypeHTML:
		target = &HTMLContent{}
	case ContentTypeEmail:
		target = &EmailContent{}
	case ContentTypeArticle:
		target = &ArticleContent{}
	case ContentTypeVideo:
		target = &VideoContent{}
	case ContentTypeTrack:
		target = &TrackContent{}
	case ContentTypeTask:
		target = &TaskContent{}
	case ContentTypeEvent:
		target = &EventContent{}
	case ContentTypeBookmark:
		target = &BookmarkContent{}
	case ContentTypeGeneric, "":
		target = &GenericContent{}
	default:
		return nil, fmt.Errorf("model: unknown content type %q", disc.Type)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("model: decode content body: %w", err)
	}

	switch v := target.(type) {
	case *TextContent:
		return *v, nil
	case *MarkdownContent:
		return *v, nil
	case *HTMLContent:
		return *v, nil
	case *EmailContent:
		return *v, nil
	case *ArticleContent:
		return *v, nil
	case *VideoContent:
		return *v, nil
	case *TrackContent:
		return *v, nil
	case *TaskContent:
		return *v, nil
	case *EventContent:
		return *v, nil
	case *BookmarkContent:
		return *v, nil
	case *GenericContent:
		return *v, nil
	}
	return target, nil
}

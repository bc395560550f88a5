// File: internal/content/model.go
package content

import (
	"live_learning_backend/internal/docstore"
)

// Kind names a content collection.
type Kind string

const (
	KindDiscussion   Kind = "discussions"
	KindLiveSession  Kind = "liveSessions"
	KindPauseContent Kind = "pauseContent"
	KindSupportWork  Kind = "supportWork"
)

// Content statuses.
const (
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusOpen      = "open"
	StatusEnded     = "ended"
	StatusClosed    = "closed"
)

// Fields every content document carries besides the form.
const (
	FieldKind      = "kind"
	FieldSlug      = "slug"
	FieldTitle     = "title"
	FieldDate      = "date"
	FieldTime      = "time"
	FieldDeadline  = "deadline"
	FieldStatus    = docstore.FieldStatus
	FieldCreatedAt = docstore.FieldCreatedAt
)

// Input layouts of the date and time form fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Form is a create-content request body.
type Form interface {
	title() string
	fields() docstore.Document
}

// DiscussionForm creates a discussion room.
type DiscussionForm struct {
	Title       string `json:"title" binding:"required,max=200"`
	Category    string `json:"category" binding:"required,max=100"`
	Description string `json:"description" binding:"required,max=5000"`
	Date        string `json:"date" binding:"required,datetime=2006-01-02"`
	Time        string `json:"time" binding:"required,datetime=15:04"`
}

func (f *DiscussionForm) title() string { return f.Title }

func (f *DiscussionForm) fields() docstore.Document {
	return docstore.Document{
		"title":       f.Title,
		"category":    f.Category,
		"description": f.Description,
		"date":        f.Date,
		"time":        f.Time,
	}
}

// LiveSessionForm schedules a live session.
type LiveSessionForm struct {
	Title       string `json:"title" binding:"required,max=200"`
	Subject     string `json:"subject" binding:"required,max=100"`
	Description string `json:"description" binding:"required,max=5000"`
	Date        string `json:"date" binding:"required,datetime=2006-01-02"`
	Time        string `json:"time" binding:"required,datetime=15:04"`
	Duration    string `json:"duration" binding:"required,max=50"`
}

func (f *LiveSessionForm) title() string { return f.Title }

func (f *LiveSessionForm) fields() docstore.Document {
	return docstore.Document{
		"title":       f.Title,
		"subject":     f.Subject,
		"description": f.Description,
		"date":        f.Date,
		"time":        f.Time,
		"duration":    f.Duration,
	}
}

// PauseContentForm publishes a short break item.
type PauseContentForm struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"required,max=5000"`
	Type        string `json:"type" binding:"required,max=100"`
	ImageURL    string `json:"imageUrl" binding:"omitempty,url,max=2048"`
}

func (f *PauseContentForm) title() string { return f.Title }

func (f *PauseContentForm) imageRef() string { return f.ImageURL }

func (f *PauseContentForm) fields() docstore.Document {
	return docstore.Document{
		"title":       f.Title,
		"description": f.Description,
		"type":        f.Type,
		"imageUrl":    f.ImageURL,
	}
}

// SupportWorkForm posts a paid work request.
type SupportWorkForm struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"required,max=5000"`
	Budget      string `json:"budget" binding:"required,max=100"`
	Deadline    string `json:"deadline" binding:"required,datetime=2006-01-02"`
}

func (f *SupportWorkForm) title() string { return f.Title }

func (f *SupportWorkForm) fields() docstore.Document {
	return docstore.Document{
		"title":       f.Title,
		"description": f.Description,
		"budget":      f.Budget,
		"deadline":    f.Deadline,
	}
}

// KindSpec describes how documents of one kind are built.
type KindSpec struct {
	Kind Kind
	// Path is the URL segment under /api/v1.
	Path string
	// Label is used in messages.
	Label            string
	CreatorIDField   string
	CreatorNameField string
	InitialStatus    string
	CounterField     string
	NewForm          func() Form
}

var kindSpecs = []KindSpec{
	{
		Kind:             KindDiscussion,
		Path:             "discussions",
		Label:            "Discussion",
		CreatorIDField:   "hostUid",
		CreatorNameField: "speaker",
		InitialStatus:    StatusScheduled,
		CounterField:     "members",
		NewForm:          func() Form { return &DiscussionForm{} },
	},
	{
		Kind:             KindLiveSession,
		Path:             "live-sessions",
		Label:            "Live session",
		CreatorIDField:   "hostUid",
		CreatorNameField: "hostName",
		InitialStatus:    StatusScheduled,
		CounterField:     "viewers",
		NewForm:          func() Form { return &LiveSessionForm{} },
	},
	{
		Kind:             KindPauseContent,
		Path:             "pause-content",
		Label:            "Pause content",
		CreatorIDField:   "creatorUid",
		CreatorNameField: "createdBy",
		InitialStatus:    StatusPublished,
		CounterField:     "views",
		NewForm:          func() Form { return &PauseContentForm{} },
	},
	{
		Kind:             KindSupportWork,
		Path:             "support-work",
		Label:            "Support work",
		CreatorIDField:   "publisherUid",
		CreatorNameField: "publishedBy",
		InitialStatus:    StatusOpen,
		CounterField:     "applicants",
		NewForm:          func() Form { return &SupportWorkForm{} },
	},
}

// Kinds returns the KindSpec of every content kind.
func Kinds() []KindSpec {
	out := make([]KindSpec, len(kindSpecs))
	copy(out, kindSpecs)
	return out
}

// SpecFor returns the KindSpec of kind.
func SpecFor(kind Kind) (KindSpec, bool) {
	for _, s := range kindSpecs {
		if s.Kind == kind {
			return s, true
		}
	}
	return KindSpec{}, false
}

// ParseKind accepts a collection name or URL segment.
func ParseKind(raw string) (Kind, bool) {
	for _, s := range kindSpecs {
		if raw == string(s.Kind) || raw == s.Path {
			return s.Kind, true
		}
	}
	return "", false
}

// Item is a stored content document with its id.
type Item map[string]interface{}

func toItem(id string, doc docstore.Document) Item {
	item := make(Item, len(doc)+1)
	for k, v := range doc {
		item[k] = v
	}
	item["id"] = id
	return item
}

// ListQuery selects a page of one kind.
type ListQuery struct {
	Status   string `form:"status" binding:"omitempty,max=32"`
	Page     int    `form:"-"`
	PageSize int    `form:"-"`
}

// SearchQuery is a full-text query across kinds.
type SearchQuery struct {
	Query    string
	Kinds    []Kind
	Page     int
	PageSize int
}

// SearchResult is one full-text hit.
type SearchResult struct {
	ID    string  `json:"id"`
	Kind  Kind    `json:"kind"`
	Score float64 `json:"score"`
	Item  Item    `json:"item"`
}

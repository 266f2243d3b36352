// Package models defines the domain entities persisted by the repositories.
package models

import "time"

// ChangeType enumerates why a PatternVersion was created.
type ChangeType string

const (
	ChangeTypeManualEdit   ChangeType = "manual_edit"
	ChangeTypeAutoGenerate ChangeType = "auto_generated"
	ChangeTypeAPIUpdate    ChangeType = "api_update"
	ChangeTypeRollback     ChangeType = "rollback"
	ChangeTypeAutoSave     ChangeType = "auto_save"
)

// Priority is a subscriber's priority tier for a product, mapped to a
// scheduler refresh interval.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank returns a numeric ordering so the highest tier across a product's
// subscribers can be selected with a simple max.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 1
	}
}

// NotificationType enumerates the kinds of notification the evaluator emits.
type NotificationType string

const (
	NotificationPriceDrop     NotificationType = "price_drop"
	NotificationRestock       NotificationType = "restock"
	NotificationTargetReached NotificationType = "target_reached"
)

// Store is one per domain.
type Store struct {
	ID               string
	Domain           string
	Active           bool
	RateLimitSeconds float64
	CurrencyHint     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Pattern is the active extraction recipe for a Store, denormalized from the
// currently-active PatternVersion for fast reads.
type Pattern struct {
	ID                 string
	Domain             string
	PatternJSON        string
	LastValidated      *time.Time
	TotalAttempts      int64
	SuccessfulAttempts int64
	SuccessRate        float64
	UpdatedAt          time.Time
}

// PatternVersion is an immutable historical snapshot of a pattern.
type PatternVersion struct {
	ID                 string
	Domain             string
	VersionNumber      int64
	PatternJSON        string
	ContentDigest      string
	IsActive           bool
	CreatedAt          time.Time
	ChangeReason       string
	ChangeType         ChangeType
	TotalAttempts      int64
	SuccessfulAttempts int64
	SuccessRate        float64
}

// Selector is a single typed extraction rule (see FieldPattern).
type Selector struct {
	Type       string  `json:"type"` // css | xpath | jsonld | meta
	Selector   string  `json:"selector"`
	Attribute  string  `json:"attribute,omitempty"`
	Confidence float64 `json:"confidence"`
}

// FieldPattern is the primary selector plus an ordered fallback chain for a
// single recognized field (price, title, image, availability, ...).
type FieldPattern struct {
	Primary   Selector   `json:"primary"`
	Fallbacks []Selector `json:"fallbacks,omitempty"`
}

// PatternDocument is the decoded shape of PatternVersion.PatternJSON /
// Pattern.PatternJSON. Unknown field names are preserved by round-tripping
// through map[string]FieldPattern rather than a fixed struct, per the
// "dynamic field names" design note.
type PatternDocument struct {
	StoreDomain string                  `json:"store_domain"`
	Patterns    map[string]FieldPattern `json:"patterns"`
}

// Recognized pattern field names. Only Price and Title are critical.
const (
	FieldPrice         = "price"
	FieldTitle         = "title"
	FieldImage         = "image"
	FieldAvailability  = "availability"
	FieldArticleNumber = "article_number"
	FieldModelNumber   = "model_number"
)

// Product is a logical item tracked across one or more stores.
type Product struct {
	ID              string
	CanonicalName   string
	Brand           string
	EAN             string
	UPC             string
	ISBN            string
	ImageURL        string
	SubscriberCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductListing is a (Product, Store) pair with a concrete URL.
type ProductListing struct {
	ID                 string
	ProductID          string
	StoreID            string
	URL                string
	URLBase            string
	CurrentPrice       *float64
	Currency           string
	Available          bool
	LastChecked        *time.Time
	LastAvailable      *time.Time
	ExtractorVersionID *string
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PriceHistory is an append-only record of one fetch cycle's outcome for a
// listing. Never mutated after insert.
type PriceHistory struct {
	ID               string
	ListingID        string
	Price            *float64
	Currency         string
	Available        bool
	RecordedAt       time.Time
	ExtractionMethod string
	Confidence       float64
}

// UserSubscription is a user's interest in a product at a given priority.
// Soft-deleted via Active=false.
type UserSubscription struct {
	ID              string
	UserID          string
	ProductID       string
	Priority        Priority
	TargetPrice     *float64
	NotifyOnDrop    bool
	NotifyOnRestock bool
	NotifyOnTarget  bool
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Notification is a user-visible event produced by the Notification Evaluator.
type Notification struct {
	ID        string
	UserID    string
	ProductID string
	Type      NotificationType
	OldPrice  *float64
	NewPrice  *float64
	Message   string
	CreatedAt time.Time
	Read      bool
}

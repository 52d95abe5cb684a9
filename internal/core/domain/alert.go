package domain

import "time"

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rank orders severities for sorting. Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type Status string

const (
	StatusNew       Status = "new"
	StatusRead      Status = "read"
	StatusActioned  Status = "actioned"
	StatusDismissed Status = "dismissed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusActioned || s == StatusDismissed
}

// CanTransition reports whether the lifecycle allows moving from -> to.
//
//	new  -> read | actioned | dismissed
//	read -> actioned | dismissed
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch to {
	case StatusRead:
		return from == StatusNew
	case StatusActioned, StatusDismissed:
		return from == StatusNew || from == StatusRead
	default:
		return false
	}
}

// CategoryCustomerEnquiry is the one category the pipeline treats specially:
// such alerts are always interruptive and have their own filter.
const CategoryCustomerEnquiry = "customer_enquiry"

// Alert is a detected mention or signal requiring triage. Severity and
// DetectedEntities are set upstream by the classification service.
type Alert struct {
	ID               string    `json:"id"`
	Platform         string    `json:"platform"`
	Content          string    `json:"content"`
	Severity         Severity  `json:"severity"`
	Status           Status    `json:"status"`
	Category         string    `json:"category,omitempty"`
	DetectedEntities []string  `json:"detected_entities,omitempty"`
	ConfidenceScore  *float64  `json:"confidence_score,omitempty"`
	PotentialReach   *int64    `json:"potential_reach,omitempty"`
	Date             time.Time `json:"date"`
	Recommendation   string    `json:"recommendation,omitempty"`
	SourceType       string    `json:"source_type,omitempty"` // social, news, review, forum, darkweb
	ThreatType       string    `json:"threat_type,omitempty"`
}

// Interruptive reports whether the alert warrants an interruptive notification.
func (a Alert) Interruptive() bool {
	return a.Severity == SeverityHigh || a.Category == CategoryCustomerEnquiry
}

// Clone returns a copy that shares no slices or pointers with a.
func (a Alert) Clone() Alert {
	c := a
	if a.DetectedEntities != nil {
		c.DetectedEntities = append([]string(nil), a.DetectedEntities...)
	}
	if a.ConfidenceScore != nil {
		v := *a.ConfidenceScore
		c.ConfidenceScore = &v
	}
	if a.PotentialReach != nil {
		v := *a.PotentialReach
		c.PotentialReach = &v
	}
	return c
}

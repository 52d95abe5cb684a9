package domain

import (
	"fmt"
	"sort"
)

const filterAll = "all"

// Filter selects alerts for a view. Zero values mean "no constraint"; all set
// predicates are combined with AND.
type Filter struct {
	Severity string // all, high, medium, low
	Status   string // all, new
	Category string // "" or customer_enquiry
}

// ParseFilter validates raw filter values coming from an outer surface.
func ParseFilter(severity, status, category string) (Filter, error) {
	f := Filter{Severity: severity, Status: status, Category: category}

	switch f.Severity {
	case "", filterAll, string(SeverityHigh), string(SeverityMedium), string(SeverityLow):
	default:
		return Filter{}, fmt.Errorf("%w: unknown severity filter %q", ErrInvalidInput, severity)
	}
	switch f.Status {
	case "", filterAll, string(StatusNew):
	default:
		return Filter{}, fmt.Errorf("%w: unknown status filter %q", ErrInvalidInput, status)
	}
	switch f.Category {
	case "", CategoryCustomerEnquiry:
	default:
		return Filter{}, fmt.Errorf("%w: unknown category filter %q", ErrInvalidInput, category)
	}
	return f, nil
}

// Match reports whether a passes every predicate of f.
func (f Filter) Match(a Alert) bool {
	if f.Severity != "" && f.Severity != filterAll && string(a.Severity) != f.Severity {
		return false
	}
	if f.Status == string(StatusNew) && a.Status != StatusNew {
		return false
	}
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	return true
}

// ApplyFilter returns the alerts matching f, ranked by SortAlerts.
// The input slice is not modified.
func ApplyFilter(alerts []Alert, f Filter) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	SortAlerts(out)
	return out
}

// SortAlerts ranks alerts in place: unread first, then severity descending,
// then most recent first. The order decides which alert is "the latest
// high-priority alert" for notifications. Ties keep their input order.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alertLess(alerts[i], alerts[j])
	})
}

func alertLess(a, b Alert) bool {
	aNew, bNew := a.Status == StatusNew, b.Status == StatusNew
	if aNew != bNew {
		return aNew
	}
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	return a.Date.After(b.Date)
}

package models

import (
	"strings"
	"time"
)

// DateFormat is the wire format for dates everywhere in this service.
const DateFormat = "2006-01-02"

// DefaultTermDays is the coverage length applied when a record has an active
// date but no expiry: expiry = active + 364 days, so one-year policies do not
// collide with their own renewal.
const DefaultTermDays = 364

// Category enumerates the supported policy categories.
type Category string

const (
	CategoryVehicle Category = "vehicle"
	CategoryHealth  Category = "health"
	CategoryLife    Category = "life"
	CategoryOther   Category = "other"
)

// IsValid checks if the category is one of the supported enum values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryVehicle, CategoryHealth, CategoryLife, CategoryOther:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// PolicyRecord is a committed policy owned by exactly one account. Records are
// created and mutated only through the submission service and never deleted by
// the workflow core.
type PolicyRecord struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	PolicyNumber  string    `json:"policy_number"`
	HolderName    string    `json:"holder_name"`
	VehicleNumber string    `json:"vehicle_number,omitempty"`
	VehicleMake   string    `json:"vehicle_make,omitempty"`
	VehicleModel  string    `json:"vehicle_model,omitempty"`
	InsurerName   string    `json:"insurer_name"`
	ContactNumber string    `json:"contact_number,omitempty"`
	Category      Category  `json:"category"`
	ActiveDate    time.Time `json:"active_date"`
	ExpiryDate    time.Time `json:"expiry_date"`

	// Category-specific numeric fields. Missing values are committed as zero,
	// except the term lengths which stay absent when not applicable.
	SumInsured       float64 `json:"sum_insured"`
	NetPremium       float64 `json:"net_premium"`
	GrossPremium     float64 `json:"gross_premium"`
	PolicyTermYears  *int    `json:"policy_term_years,omitempty"`
	PremiumTermYears *int    `json:"premium_term_years,omitempty"`

	// DocumentPath references the uploaded policy document in the document
	// store; empty when the record was saved without one.
	DocumentPath string `json:"document_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize trims and upper-cases a value for comparison purposes only; stored
// values are never altered.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// VerdictKind discriminates duplicate-check outcomes.
type VerdictKind string

const (
	VerdictNone           VerdictKind = "none"
	VerdictExactDuplicate VerdictKind = "exact_duplicate"
	VerdictRangeOverlap   VerdictKind = "range_overlap"
)

// DuplicateVerdict is the outcome of screening a candidate against the owner's
// existing records. Matched is set for both duplicate kinds.
type DuplicateVerdict struct {
	Kind    VerdictKind   `json:"kind"`
	Matched *PolicyRecord `json:"matched,omitempty"`
}

// IsDuplicate reports whether the verdict blocks submission.
func (v DuplicateVerdict) IsDuplicate() bool {
	return v.Kind != VerdictNone
}

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Draft is the session-scoped working copy of a record being created or
// edited. Fields stay as entered text until submission so partially filled
// forms round-trip losslessly; parsing happens in ValidateAndBuild.
type Draft struct {
	RecordID      string `json:"record_id,omitempty"` // set when editing/renewing
	PolicyNumber  string `json:"policy_number"`
	HolderName    string `json:"holder_name"`
	VehicleNumber string `json:"vehicle_number"`
	VehicleMake   string `json:"vehicle_make"`
	VehicleModel  string `json:"vehicle_model"`
	InsurerName   string `json:"insurer_name"`
	ContactNumber string `json:"contact_number"`
	Category      string `json:"category"`
	ActiveDate    string `json:"active_date"`
	ExpiryDate    string `json:"expiry_date"`

	SumInsured       string `json:"sum_insured"`
	NetPremium       string `json:"net_premium"`
	GrossPremium     string `json:"gross_premium"`
	PolicyTermYears  string `json:"policy_term_years"`
	PremiumTermYears string `json:"premium_term_years"`

	// Transient state: the attached document and the last extraction failure,
	// kept so reloads restore both the form and its error affordances.
	DocumentName        string `json:"document_name,omitempty"`
	DocumentContentType string `json:"document_content_type,omitempty"`
	LastExtractionError string `json:"last_extraction_error,omitempty"`
}

// ExtractionResult is the read-once output of the extraction pipeline: a
// sparse set of best-effort field values. It is never persisted, only merged
// into a draft.
type ExtractionResult struct {
	PolicyNumber  string `json:"policy_number,omitempty"`
	HolderName    string `json:"holder_name,omitempty"`
	VehicleNumber string `json:"vehicle_number,omitempty"`
	VehicleMake   string `json:"vehicle_make,omitempty"`
	VehicleModel  string `json:"vehicle_model,omitempty"`
	InsurerName   string `json:"insurer_name,omitempty"`
	ContactNumber string `json:"contact_number,omitempty"`
	Category      string `json:"category,omitempty"`
	ActiveDate    string `json:"active_date,omitempty"`
	NetPremium    string `json:"net_premium,omitempty"`
	SumInsured    string `json:"sum_insured,omitempty"`
	GrossPremium  string `json:"gross_premium,omitempty"`
}

// Merge fills empty draft fields from the extraction result. Fields the user
// already set are never overwritten.
func (d *Draft) Merge(r ExtractionResult) {
	fillEmpty(&d.PolicyNumber, r.PolicyNumber)
	fillEmpty(&d.HolderName, r.HolderName)
	fillEmpty(&d.VehicleNumber, r.VehicleNumber)
	fillEmpty(&d.VehicleMake, r.VehicleMake)
	fillEmpty(&d.VehicleModel, r.VehicleModel)
	fillEmpty(&d.InsurerName, r.InsurerName)
	fillEmpty(&d.ContactNumber, r.ContactNumber)
	fillEmpty(&d.Category, r.Category)
	fillEmpty(&d.ActiveDate, r.ActiveDate)
	fillEmpty(&d.NetPremium, r.NetPremium)
	fillEmpty(&d.SumInsured, r.SumInsured)
	fillEmpty(&d.GrossPremium, r.GrossPremium)
}

func fillEmpty(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" && v != "" {
		*dst = v
	}
}

// FromRecord seeds a draft from a committed record, used when a renewal
// starts editing the queue head.
func FromRecord(rec *PolicyRecord) *Draft {
	d := &Draft{
		RecordID:      rec.ID,
		PolicyNumber:  rec.PolicyNumber,
		HolderName:    rec.HolderName,
		VehicleNumber: rec.VehicleNumber,
		VehicleMake:   rec.VehicleMake,
		VehicleModel:  rec.VehicleModel,
		InsurerName:   rec.InsurerName,
		ContactNumber: rec.ContactNumber,
		Category:      rec.Category.String(),
		ActiveDate:    rec.ActiveDate.Format(DateFormat),
		ExpiryDate:    rec.ExpiryDate.Format(DateFormat),
		SumInsured:    formatFloat(rec.SumInsured),
		NetPremium:    formatFloat(rec.NetPremium),
		GrossPremium:  formatFloat(rec.GrossPremium),
	}
	if rec.PolicyTermYears != nil {
		d.PolicyTermYears = strconv.Itoa(*rec.PolicyTermYears)
	}
	if rec.PremiumTermYears != nil {
		d.PremiumTermYears = strconv.Itoa(*rec.PremiumTermYears)
	}
	return d
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FieldError is a single recoverable validation failure tied to one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors aggregates field errors so the caller can surface all of
// them in one round trip.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateAndBuild checks the draft against the submission rules and, when
// clean, parses it into a PolicyRecord ready to commit. Category numeric
// fields left blank default to zero; term lengths stay absent.
func (d *Draft) ValidateAndBuild() (*PolicyRecord, error) {
	var errs ValidationErrors

	policyNumber := strings.TrimSpace(d.PolicyNumber)
	if len(policyNumber) < 3 {
		errs = append(errs, FieldError{Field: "policy_number", Message: "must be at least 3 characters"})
	}
	holderName := strings.TrimSpace(d.HolderName)
	if len(holderName) < 2 {
		errs = append(errs, FieldError{Field: "holder_name", Message: "must be at least 2 characters"})
	}

	category := Category(strings.ToLower(strings.TrimSpace(d.Category)))
	if !category.IsValid() {
		errs = append(errs, FieldError{Field: "category", Message: "must be one of vehicle, health, life, other"})
	}
	if category == CategoryVehicle && strings.TrimSpace(d.VehicleNumber) == "" {
		errs = append(errs, FieldError{Field: "vehicle_number", Message: "required for vehicle policies"})
	}

	if phone := strings.TrimSpace(d.ContactNumber); phone != "" && !isTenDigits(phone) {
		errs = append(errs, FieldError{Field: "contact_number", Message: "must be exactly 10 digits"})
	}

	activeDate, err := time.Parse(DateFormat, strings.TrimSpace(d.ActiveDate))
	if err != nil {
		errs = append(errs, FieldError{Field: "active_date", Message: "must be a date in format " + DateFormat})
	}

	var expiryDate time.Time
	if raw := strings.TrimSpace(d.ExpiryDate); raw != "" {
		expiryDate, err = time.Parse(DateFormat, raw)
		if err != nil {
			errs = append(errs, FieldError{Field: "expiry_date", Message: "must be a date in format " + DateFormat})
		} else if !activeDate.IsZero() && expiryDate.Before(activeDate) {
			errs = append(errs, FieldError{Field: "expiry_date", Message: "must not be before active date"})
		}
	} else if !activeDate.IsZero() {
		expiryDate = activeDate.AddDate(0, 0, DefaultTermDays)
	}

	sumInsured, ferr := parseAmount(d.SumInsured)
	if ferr != nil {
		errs = append(errs, FieldError{Field: "sum_insured", Message: "must be a number"})
	}
	netPremium, ferr := parseAmount(d.NetPremium)
	if ferr != nil {
		errs = append(errs, FieldError{Field: "net_premium", Message: "must be a number"})
	}
	grossPremium, ferr := parseAmount(d.GrossPremium)
	if ferr != nil {
		errs = append(errs, FieldError{Field: "gross_premium", Message: "must be a number"})
	}

	policyTerm, terr := parseTerm(d.PolicyTermYears)
	if terr != nil {
		errs = append(errs, FieldError{Field: "policy_term_years", Message: "must be a whole number of years"})
	}
	premiumTerm, terr := parseTerm(d.PremiumTermYears)
	if terr != nil {
		errs = append(errs, FieldError{Field: "premium_term_years", Message: "must be a whole number of years"})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &PolicyRecord{
		ID:               d.RecordID,
		PolicyNumber:     policyNumber,
		HolderName:       holderName,
		VehicleNumber:    strings.TrimSpace(d.VehicleNumber),
		VehicleMake:      strings.TrimSpace(d.VehicleMake),
		VehicleModel:     strings.TrimSpace(d.VehicleModel),
		InsurerName:      strings.TrimSpace(d.InsurerName),
		ContactNumber:    strings.TrimSpace(d.ContactNumber),
		Category:         category,
		ActiveDate:       activeDate,
		ExpiryDate:       expiryDate,
		SumInsured:       sumInsured,
		NetPremium:       netPremium,
		GrossPremium:     grossPremium,
		PolicyTermYears:  policyTerm,
		PremiumTermYears: premiumTerm,
	}, nil
}

func isTenDigits(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return f, nil
}

func parseTerm(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid term %q", s)
	}
	return &n, nil
}

// Package overlap screens a candidate record against an owner's existing
// records on two independent identity axes: the policy number, and the
// vehicle+insurer coverage interval. It is a pure function over its inputs;
// callers supply the record set in a deterministic order (creation time) so
// verdicts are reproducible.
package overlap

import (
	"time"

	"policydesk/internal/policy/models"
)

// Candidate carries the identity fields the detector needs. Optional fields
// left zero simply disable the interval rule; they never cause an error.
type Candidate struct {
	PolicyNumber  string
	VehicleNumber string
	InsurerName   string
	ActiveDate    time.Time
	ExpiryDate    time.Time
}

// CandidateFromRecord extracts the identity axes from a built record.
func CandidateFromRecord(rec *models.PolicyRecord) Candidate {
	return Candidate{
		PolicyNumber:  rec.PolicyNumber,
		VehicleNumber: rec.VehicleNumber,
		InsurerName:   rec.InsurerName,
		ActiveDate:    rec.ActiveDate,
		ExpiryDate:    rec.ExpiryDate,
	}
}

// CheckDuplicate screens the candidate against existing records, skipping the
// record identified by excludeID (pass "" for create flows).
//
// The exact policy-number rule is checked first and short-circuits: two
// records with the same normalized number are duplicates regardless of dates.
// The interval rule only runs when vehicle number, insurer name, and active
// date are all present; it reports the first existing record for the same
// vehicle+insurer whose coverage interval overlaps the candidate's
// (inclusive on both ends).
func CheckDuplicate(candidate Candidate, existing []*models.PolicyRecord, excludeID string) models.DuplicateVerdict {
	number := models.Normalize(candidate.PolicyNumber)
	if number != "" {
		for _, rec := range existing {
			if excludeID != "" && rec.ID == excludeID {
				continue
			}
			if models.Normalize(rec.PolicyNumber) == number {
				return models.DuplicateVerdict{Kind: models.VerdictExactDuplicate, Matched: rec}
			}
		}
	}

	vehicle := models.Normalize(candidate.VehicleNumber)
	insurer := models.Normalize(candidate.InsurerName)
	if vehicle == "" || insurer == "" || candidate.ActiveDate.IsZero() {
		return models.DuplicateVerdict{Kind: models.VerdictNone}
	}

	expiry := candidate.ExpiryDate
	if expiry.IsZero() {
		expiry = candidate.ActiveDate.AddDate(0, 0, models.DefaultTermDays)
	}

	for _, rec := range existing {
		if excludeID != "" && rec.ID == excludeID {
			continue
		}
		if models.Normalize(rec.VehicleNumber) != vehicle || models.Normalize(rec.InsurerName) != insurer {
			continue
		}
		if intervalsOverlap(candidate.ActiveDate, expiry, rec.ActiveDate, rec.ExpiryDate) {
			return models.DuplicateVerdict{Kind: models.VerdictRangeOverlap, Matched: rec}
		}
	}

	return models.DuplicateVerdict{Kind: models.VerdictNone}
}

// intervalsOverlap is inclusive on both ends: touching endpoints count as
// overlapping coverage.
func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

package handler

import "policydesk/internal/policy/models"

// SubmitRequest is the JSON body for POST /policies and PUT /policies/{id}.
// Multipart submissions carry the same draft as a JSON form field plus an
// optional document part.
type SubmitRequest struct {
	Scope string        `json:"scope"`
	Draft *models.Draft `json:"draft"`
}

// CheckDuplicateRequest screens a candidate without committing anything.
type CheckDuplicateRequest struct {
	PolicyNumber  string `json:"policy_number"`
	VehicleNumber string `json:"vehicle_number"`
	InsurerName   string `json:"insurer_name"`
	ActiveDate    string `json:"active_date"`
	ExpiryDate    string `json:"expiry_date"`
	ExcludeID     string `json:"exclude_id"`
}

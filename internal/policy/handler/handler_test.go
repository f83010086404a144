package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"policydesk/internal/platform/middleware"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/overlap"
	"policydesk/internal/policy/service"
)

type stubService struct {
	submitResult  *service.Result
	submitErr     error
	verdict       models.DuplicateVerdict
	gotScope      string
	gotMode       service.Mode
	gotDraft      *models.Draft
	gotAttachment *service.Attachment
	gotCandidate  overlap.Candidate
	gotExcludeID  string
}

func (s *stubService) Submit(_ context.Context, _, scope string, d *models.Draft, mode service.Mode, attachment *service.Attachment) (*service.Result, error) {
	s.gotScope, s.gotMode, s.gotDraft, s.gotAttachment = scope, mode, d, attachment
	return s.submitResult, s.submitErr
}

func (s *stubService) CheckDuplicate(_ context.Context, _ string, candidate overlap.Candidate, excludeID string) (models.DuplicateVerdict, error) {
	s.gotCandidate, s.gotExcludeID = candidate, excludeID
	return s.verdict, nil
}

type PolicyHandlerSuite struct {
	suite.Suite
	stub   *stubService
	router *chi.Mux
}

func TestPolicyHandlerSuite(t *testing.T) {
	suite.Run(t, new(PolicyHandlerSuite))
}

func (s *PolicyHandlerSuite) SetupTest() {
	s.stub = &stubService{}
	h := New(s.stub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *PolicyHandlerSuite) serve(method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req = req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyOwnerID, "owner-1"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *PolicyHandlerSuite) TestCreate() {
	s.stub.submitResult = &service.Result{
		Record:        &models.PolicyRecord{ID: "rec-1", PolicyNumber: "POL-1"},
		DocumentSaved: true,
	}

	body, _ := json.Marshal(SubmitRequest{Draft: &models.Draft{PolicyNumber: "POL-1"}})
	w := s.serve(http.MethodPost, "/policies", "application/json", bytes.NewReader(body))

	s.Equal(http.StatusCreated, w.Code)
	s.Equal(service.ModeCreate, s.stub.gotMode)
	s.Equal("new-record", s.stub.gotScope, "scope defaults when the body omits it")

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("rec-1", resp["record"].(map[string]any)["id"])
}

func (s *PolicyHandlerSuite) TestUpdateBindsRecordID() {
	s.stub.submitResult = &service.Result{Record: &models.PolicyRecord{ID: "rec-9"}, DocumentSaved: true}

	body, _ := json.Marshal(SubmitRequest{Scope: "renew-rec-9", Draft: &models.Draft{PolicyNumber: "POL-9"}})
	w := s.serve(http.MethodPut, "/policies/rec-9", "application/json", bytes.NewReader(body))

	s.Equal(http.StatusOK, w.Code)
	s.Equal(service.ModeUpdate, s.stub.gotMode)
	s.Equal("rec-9", s.stub.gotDraft.RecordID, "path id wins over whatever the draft carried")
	s.Equal("renew-rec-9", s.stub.gotScope)
}

func (s *PolicyHandlerSuite) TestValidationEnvelope() {
	s.stub.submitErr = models.ValidationErrors{
		{Field: "policy_number", Message: "must be at least 3 characters"},
	}

	body, _ := json.Marshal(SubmitRequest{Draft: &models.Draft{}})
	w := s.serve(http.MethodPost, "/policies", "application/json", bytes.NewReader(body))

	s.Equal(http.StatusBadRequest, w.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("validation_failed", resp["error"])
	fields := resp["fields"].([]any)
	s.Equal("policy_number", fields[0].(map[string]any)["field"])
}

func (s *PolicyHandlerSuite) TestDuplicateEnvelope() {
	s.stub.submitErr = &service.DuplicateError{Verdict: models.DuplicateVerdict{
		Kind:    models.VerdictRangeOverlap,
		Matched: &models.PolicyRecord{ID: "rec-2"},
	}}

	body, _ := json.Marshal(SubmitRequest{Draft: &models.Draft{PolicyNumber: "POL-1"}})
	w := s.serve(http.MethodPost, "/policies", "application/json", bytes.NewReader(body))

	s.Equal(http.StatusConflict, w.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("duplicate_policy", resp["error"])
	verdict := resp["verdict"].(map[string]any)
	s.Equal("range_overlap", verdict["kind"])
	s.Equal("rec-2", verdict["matched"].(map[string]any)["id"])
}

func (s *PolicyHandlerSuite) TestSubmissionInFlight() {
	s.stub.submitErr = service.ErrSubmissionInFlight

	body, _ := json.Marshal(SubmitRequest{Draft: &models.Draft{PolicyNumber: "POL-1"}})
	w := s.serve(http.MethodPost, "/policies", "application/json", bytes.NewReader(body))

	s.Equal(http.StatusConflict, w.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("submission_in_flight", resp["error"])
}

func (s *PolicyHandlerSuite) TestMissingDraft() {
	body, _ := json.Marshal(SubmitRequest{Scope: "new-record"})
	w := s.serve(http.MethodPost, "/policies", "application/json", bytes.NewReader(body))
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *PolicyHandlerSuite) TestMultipartSubmit() {
	s.stub.submitResult = &service.Result{Record: &models.PolicyRecord{ID: "rec-1"}, DocumentSaved: true}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("scope", "new-record")
	draftJSON, _ := json.Marshal(models.Draft{PolicyNumber: "POL-1", HolderName: "Asha Rao"})
	_ = mw.WriteField("draft", string(draftJSON))
	part, _ := mw.CreateFormFile("document", "scan.pdf")
	_, _ = part.Write([]byte("%PDF-1.4 payload"))
	s.Require().NoError(mw.Close())

	w := s.serve(http.MethodPost, "/policies", mw.FormDataContentType(), &buf)

	s.Equal(http.StatusCreated, w.Code)
	s.Require().NotNil(s.stub.gotAttachment)
	s.Equal("scan.pdf", s.stub.gotAttachment.Filename)
	s.Equal([]byte("%PDF-1.4 payload"), s.stub.gotAttachment.Data)
	s.Equal("POL-1", s.stub.gotDraft.PolicyNumber)
}

func (s *PolicyHandlerSuite) TestCheckDuplicate() {
	s.stub.verdict = models.DuplicateVerdict{Kind: models.VerdictNone}

	body, _ := json.Marshal(CheckDuplicateRequest{
		PolicyNumber:  "POL-1",
		VehicleNumber: "KA01AB1234",
		InsurerName:   "Acme General",
		ActiveDate:    "2024-04-01",
		ExcludeID:     "rec-5",
	})
	w := s.serve(http.MethodPost, "/policies/check-duplicate", "application/json", bytes.NewReader(body))

	s.Equal(http.StatusOK, w.Code)
	s.Equal("rec-5", s.stub.gotExcludeID)
	s.Equal("POL-1", s.stub.gotCandidate.PolicyNumber)
	want, _ := time.Parse(models.DateFormat, "2024-04-01")
	s.True(s.stub.gotCandidate.ActiveDate.Equal(want))

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("none", resp["kind"])
}

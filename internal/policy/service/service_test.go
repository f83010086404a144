package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"policydesk/internal/audit"
	"policydesk/internal/draft"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/store"
	dErrors "policydesk/pkg/domainerrors"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *fakeRecorder) Emit(event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *fakeRecorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

type fakeDocStore struct {
	fail    bool
	uploads int
}

func (d *fakeDocStore) Upload(_ context.Context, ownerID, policyNumber, filename, _ string, _ []byte) (string, error) {
	if d.fail {
		return "", errors.New("bucket unreachable")
	}
	d.uploads++
	return ownerID + "/1714550400000_" + policyNumber, nil
}

func (d *fakeDocStore) Remove(context.Context, string) error      { return nil }
func (d *fakeDocStore) Download(context.Context, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

// blockingStore parks Insert until the gate opens so tests can observe a
// submission held in flight.
type blockingStore struct {
	*store.InMemoryStore
	entered chan struct{}
	gate    chan struct{}
}

func (b *blockingStore) Insert(ctx context.Context, rec *models.PolicyRecord) error {
	close(b.entered)
	<-b.gate
	return b.InMemoryStore.Insert(ctx, rec)
}

type ServiceSuite struct {
	suite.Suite
	records  *store.InMemoryStore
	drafts   *draft.InMemoryStore
	docs     *fakeDocStore
	recorder *fakeRecorder
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.records = store.NewInMemoryStore()
	s.drafts = draft.NewInMemoryStore()
	s.docs = &fakeDocStore{}
	s.recorder = &fakeRecorder{}
	s.svc = NewService(slog.New(slog.DiscardHandler), s.records, s.drafts, s.docs, s.recorder)
}

func validDraft() *models.Draft {
	return &models.Draft{
		PolicyNumber:  "POL-100",
		HolderName:    "Asha Rao",
		VehicleNumber: "KA01AB1234",
		InsurerName:   "Acme General",
		Category:      "vehicle",
		ActiveDate:    "2024-04-01",
		NetPremium:    "12000",
	}
}

func (s *ServiceSuite) TestValidation() {
	ctx := context.Background()

	s.Run("short policy number", func() {
		d := validDraft()
		d.PolicyNumber = "AB"
		_, err := s.svc.Submit(ctx, "owner-1", "new-record", d, ModeCreate, nil)
		var verrs models.ValidationErrors
		s.Require().ErrorAs(err, &verrs)
		s.Equal("policy_number", verrs[0].Field)
	})

	s.Run("vehicle number required only for vehicle category", func() {
		d := validDraft()
		d.VehicleNumber = ""
		_, err := s.svc.Submit(ctx, "owner-1", "new-record", d, ModeCreate, nil)
		var verrs models.ValidationErrors
		s.Require().ErrorAs(err, &verrs)

		d = validDraft()
		d.Category = "health"
		d.VehicleNumber = ""
		_, err = s.svc.Submit(ctx, "owner-1", "new-record", d, ModeCreate, nil)
		s.NoError(err)
	})

	s.Run("bad phone number", func() {
		d := validDraft()
		d.ContactNumber = "12345"
		_, err := s.svc.Submit(ctx, "owner-1", "new-record", d, ModeCreate, nil)
		var verrs models.ValidationErrors
		s.Require().ErrorAs(err, &verrs)
	})

	s.Run("missing numerics default to zero, term stays absent", func() {
		d := validDraft()
		d.PolicyNumber = "POL-NUM"
		d.VehicleNumber = "TN10ZZ9999"
		d.NetPremium = ""
		res, err := s.svc.Submit(ctx, "owner-1", "new-record", d, ModeCreate, nil)
		s.Require().NoError(err)
		s.Zero(res.Record.NetPremium)
		s.Nil(res.Record.PolicyTermYears)
	})

	s.Run("missing expiry defaults to active plus 364 days", func() {
		d := validDraft()
		d.PolicyNumber = "POL-EXP"
		d.VehicleNumber = "MH02XX0001"
		res, err := s.svc.Submit(ctx, "owner-1", "new-record", d, ModeCreate, nil)
		s.Require().NoError(err)
		want, _ := time.Parse(models.DateFormat, "2024-04-01")
		s.True(res.Record.ExpiryDate.Equal(want.AddDate(0, 0, models.DefaultTermDays)))
	})
}

func (s *ServiceSuite) TestCreate() {
	ctx := context.Background()
	s.Require().NoError(s.drafts.Save(ctx, "owner-1", "new-record", validDraft()))

	res, err := s.svc.Submit(ctx, "owner-1", "new-record", validDraft(), ModeCreate, nil)
	s.Require().NoError(err)
	s.NotEmpty(res.Record.ID)
	s.Equal("owner-1", res.Record.OwnerID)
	s.True(res.DocumentSaved)

	s.Run("record is persisted", func() {
		got, err := s.records.GetByID(ctx, "owner-1", res.Record.ID)
		s.NoError(err)
		s.Equal("POL-100", got.PolicyNumber)
	})

	s.Run("draft scope is cleared", func() {
		_, err := s.drafts.Load(ctx, "owner-1", "new-record")
		s.ErrorIs(err, draft.ErrNotFound)
	})

	s.Run("audit event emitted", func() {
		events := s.recorder.Events()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionPolicyCreated, events[0].Action)
		s.Equal(res.Record.ID, events[0].RecordID)
	})
}

func (s *ServiceSuite) TestDuplicateReCheckBeforeCommit() {
	ctx := context.Background()
	_, err := s.svc.Submit(ctx, "owner-1", "new-record", validDraft(), ModeCreate, nil)
	s.Require().NoError(err)

	s.Run("same number blocked", func() {
		d := validDraft()
		d.PolicyNumber = " pol-100 "
		_, err := s.svc.Submit(ctx, "owner-1", "s2", d, ModeCreate, nil)
		var dup *DuplicateError
		s.Require().ErrorAs(err, &dup)
		s.Equal(models.VerdictExactDuplicate, dup.Verdict.Kind)
	})

	s.Run("overlapping interval blocked", func() {
		d := validDraft()
		d.PolicyNumber = "POL-200"
		d.ActiveDate = "2024-10-01"
		_, err := s.svc.Submit(ctx, "owner-1", "s3", d, ModeCreate, nil)
		var dup *DuplicateError
		s.Require().ErrorAs(err, &dup)
		s.Equal(models.VerdictRangeOverlap, dup.Verdict.Kind)
	})
}

func (s *ServiceSuite) TestUpdate() {
	ctx := context.Background()
	res, err := s.svc.Submit(ctx, "owner-1", "new-record", validDraft(), ModeCreate, &Attachment{
		Filename: "scan.pdf", ContentType: "application/pdf", Data: []byte("doc"),
	})
	s.Require().NoError(err)
	created := res.Record

	s.Run("renewal of itself is not a duplicate", func() {
		d := models.FromRecord(created)
		d.ActiveDate = "2025-04-01"
		d.ExpiryDate = ""
		updated, err := s.svc.Submit(ctx, "owner-1", "renew-"+created.ID, d, ModeUpdate, nil)
		s.Require().NoError(err)
		s.Equal(created.ID, updated.Record.ID)
		s.True(updated.Record.CreatedAt.Equal(created.CreatedAt))
		s.Equal(created.DocumentPath, updated.Record.DocumentPath, "existing document survives an update without attachment")
	})

	s.Run("updating someone else's record is not found", func() {
		d := models.FromRecord(created)
		_, err := s.svc.Submit(ctx, "owner-2", "edit", d, ModeUpdate, nil)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("update without record id is rejected", func() {
		d := validDraft()
		_, err := s.svc.Submit(ctx, "owner-1", "edit", d, ModeUpdate, nil)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestUploadFailureDegrades() {
	ctx := context.Background()
	s.docs.fail = true

	res, err := s.svc.Submit(ctx, "owner-1", "new-record", validDraft(), ModeCreate, &Attachment{
		Filename: "scan.pdf", ContentType: "application/pdf", Data: []byte("doc"),
	})
	s.Require().NoError(err, "a failed upload must not abort the submission")
	s.False(res.DocumentSaved)
	s.NotEmpty(res.DocumentError)
	s.Empty(res.Record.DocumentPath)

	s.Run("record still committed", func() {
		_, err := s.records.GetByID(ctx, "owner-1", res.Record.ID)
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestAtMostOnce() {
	gated := &blockingStore{
		InMemoryStore: store.NewInMemoryStore(),
		entered:       make(chan struct{}),
		gate:          make(chan struct{}),
	}
	svc := NewService(slog.New(slog.DiscardHandler), gated, s.drafts, nil, s.recorder)

	ctx := context.Background()
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, "owner-1", "new-record", validDraft(), ModeCreate, nil)
		firstDone <- err
	}()

	// Wait until the first submission is parked inside the store write, then
	// repeat it.
	<-gated.entered
	_, err := svc.Submit(ctx, "owner-1", "new-record", validDraft(), ModeCreate, nil)
	s.ErrorIs(err, ErrSubmissionInFlight)

	close(gated.gate)
	s.Require().NoError(<-firstDone)

	records, err := gated.ListByOwner(ctx, "owner-1")
	s.Require().NoError(err)
	s.Len(records, 1, "double invocation must not produce two records")
}

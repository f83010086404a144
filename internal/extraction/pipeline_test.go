package extraction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"policydesk/internal/policy/models"
	"policydesk/internal/policy/store"
)

type stubClient struct {
	result *RawResult
	err    error
	calls  int
}

func (c *stubClient) Extract(_ context.Context, _ string) (*RawResult, error) {
	c.calls++
	return c.result, c.err
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("unexpected EOF")
}

type PipelineSuite struct {
	suite.Suite
	client  *stubClient
	records *store.InMemoryStore
	pipe    *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.client = &stubClient{}
	s.records = store.NewInMemoryStore()
	s.pipe = NewPipeline(slog.New(slog.DiscardHandler), s.client, s.records)
}

func pdf(content string) File {
	return File{
		Name:        "policy.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Reader:      strings.NewReader(content),
	}
}

func (s *PipelineSuite) TestValidation() {
	ctx := context.Background()

	s.Run("oversized file fails before any network call", func() {
		file := File{Name: "big.pdf", ContentType: "application/pdf", Size: 12 << 20}
		_, err := s.pipe.Run(ctx, "owner-1", file, &models.Draft{}, "")
		s.Require().NotNil(err)
		s.Equal(KindFileTooLarge, err.Kind)
		s.Equal(StageValidating, err.Stage)
		s.Zero(s.client.calls)
	})

	s.Run("unsupported format rejected", func() {
		file := File{Name: "policy.docx", ContentType: "application/msword", Size: 100, Reader: strings.NewReader("x")}
		_, err := s.pipe.Run(ctx, "owner-1", file, &models.Draft{}, "")
		s.Require().NotNil(err)
		s.Equal(KindUnsupportedFormat, err.Kind)
		s.Zero(s.client.calls)
	})

	s.Run("extension rescues a missing content type", func() {
		s.Nil(Validate(File{Name: "scan.JPG", Size: 100}))
	})

	s.Run("content type with parameters accepted", func() {
		s.Nil(Validate(File{Name: "upload", ContentType: "image/png; charset=binary", Size: 100}))
	})
}

func (s *PipelineSuite) TestEncoding() {
	s.Run("unreadable stream is a corrupt file", func() {
		file := File{Name: "policy.pdf", ContentType: "application/pdf", Size: 100, Reader: failingReader{}}
		_, err := s.pipe.Run(context.Background(), "owner-1", file, &models.Draft{}, "")
		s.Require().NotNil(err)
		s.Equal(KindCorruptFile, err.Kind)
		s.Equal(StageEncoding, err.Stage)
		s.Zero(s.client.calls)
	})

	s.Run("empty stream is a corrupt file", func() {
		_, err := Encode(File{Reader: strings.NewReader("")})
		s.Require().NotNil(err)
		s.Equal(KindCorruptFile, err.Kind)
	})
}

func (s *PipelineSuite) TestServiceFailureClassification() {
	ctx := context.Background()
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"401 is auth expired", &ServiceError{StatusCode: 401, Reason: "token expired"}, KindAuthExpired},
		{"429 is rate limited", &ServiceError{StatusCode: 429, Reason: ""}, KindRateLimited},
		{"503 is service unavailable", &ServiceError{StatusCode: 503, Reason: "down"}, KindServiceUnavailable},
		{"reason mentioning rate limit", &ServiceError{StatusCode: 200, Reason: "rate limit exceeded"}, KindRateLimited},
		{"reason mentioning no data", &ServiceError{StatusCode: 200, Reason: "no data found in document"}, KindNoDataExtracted},
		{"deadline exceeded is a network error", context.DeadlineExceeded, KindNetworkError},
		{"anything else is unknown", errors.New("weird"), KindUnknown},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.client.err = tc.err
			s.client.result = nil
			_, err := s.pipe.Run(ctx, "owner-1", pdf("doc"), &models.Draft{}, "")
			s.Require().NotNil(err)
			s.Equal(tc.want, err.Kind)
			s.Equal(StageAwaitingService, err.Stage)
		})
	}

	s.Run("auth expired is the only non-retryable kind", func() {
		s.False((&Error{Kind: KindAuthExpired}).Retryable())
		for _, k := range []Kind{KindFileTooLarge, KindUnsupportedFormat, KindCorruptFile,
			KindNetworkError, KindRateLimited, KindServiceUnavailable, KindNoDataExtracted, KindUnknown} {
			s.True((&Error{Kind: k}).Retryable(), string(k))
		}
	})
}

func (s *PipelineSuite) TestMapResult() {
	result := MapResult(&RawResult{
		PolicyNumber:  " pol-778/21 ",
		ClientName:    " Asha Rao ",
		VehicleNumber: "ka01ab1234",
		InsurerName:   " Acme General ",
		ContactNumber: "+91 98765-43210",
		NetPremium:    "₹12,500.50",
		InsuranceType: "Motor",
		ActiveDate:    "15/04/2024",
	})
	s.Equal("POL-778/21", result.PolicyNumber)
	s.Equal("Asha Rao", result.HolderName)
	s.Equal("KA01AB1234", result.VehicleNumber)
	s.Equal("Acme General", result.InsurerName)
	s.Equal("9876543210", result.ContactNumber)
	s.Equal("12500.50", result.NetPremium)
	s.Equal("vehicle", result.Category)
	s.Equal("2024-04-15", result.ActiveDate)

	s.Run("unparseable date stays absent", func() {
		r := MapResult(&RawResult{ActiveDate: "April 15th"})
		s.Empty(r.ActiveDate)
	})

	s.Run("non-ten-digit phone stays absent", func() {
		r := MapResult(&RawResult{ContactNumber: "12345"})
		s.Empty(r.ContactNumber)
	})
}

func (s *PipelineSuite) TestMergePreservesUserEdits() {
	ctx := context.Background()
	s.client.result = &RawResult{
		PolicyNumber: "POL-EXTRACTED",
		ClientName:   "Extracted Name",
		InsurerName:  "Extracted Insurer",
	}

	d := &models.Draft{HolderName: "User Typed This"}
	outcome, err := s.pipe.Run(ctx, "owner-1", pdf("doc"), d, "")
	s.Require().Nil(err)

	s.Equal("User Typed This", outcome.Draft.HolderName)
	s.Equal("POL-EXTRACTED", outcome.Draft.PolicyNumber)
	s.Equal("Extracted Insurer", outcome.Draft.InsurerName)
}

func (s *PipelineSuite) TestDuplicateScreenAfterSuccess() {
	ctx := context.Background()
	active, _ := time.Parse(models.DateFormat, "2024-01-01")
	s.Require().NoError(s.records.Insert(ctx, &models.PolicyRecord{
		ID:           "r1",
		OwnerID:      "owner-1",
		PolicyNumber: "POL-123",
		HolderName:   "Asha Rao",
		InsurerName:  "Acme General",
		Category:     models.CategoryHealth,
		ActiveDate:   active,
		ExpiryDate:   active.AddDate(0, 0, models.DefaultTermDays),
		CreatedAt:    time.Now(),
	}))

	s.client.result = &RawResult{PolicyNumber: "pol-123"}
	outcome, err := s.pipe.Run(ctx, "owner-1", pdf("doc"), &models.Draft{}, "")
	s.Require().Nil(err)
	s.Equal(models.VerdictExactDuplicate, outcome.Verdict.Kind)
	s.Equal("r1", outcome.Verdict.Matched.ID)

	s.Run("exclude id suppresses self-match on renewal", func() {
		outcome, err := s.pipe.Run(ctx, "owner-1", pdf("doc"), &models.Draft{}, "r1")
		s.Require().Nil(err)
		s.Equal(models.VerdictNone, outcome.Verdict.Kind)
	})
}

func (s *PipelineSuite) TestNoUsableFields() {
	s.client.result = &RawResult{}
	_, err := s.pipe.Run(context.Background(), "owner-1", pdf("doc"), &models.Draft{}, "")
	s.Require().NotNil(err)
	s.Equal(KindNoDataExtracted, err.Kind)
}

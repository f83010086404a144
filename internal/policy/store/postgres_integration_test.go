//go:build integration

package store_test

import (
	"context"
	_ "embed"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"policydesk/internal/policy/models"
	"policydesk/internal/policy/store"
	"policydesk/pkg/testutil/containers"
)

//go:embed schema.sql
var schema string

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.Exec(s.T(), schema)
	s.store = store.NewPostgresStore(s.pg.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), "TRUNCATE policy_records")
}

func (s *PostgresStoreSuite) record(ownerID, number string) *models.PolicyRecord {
	active, err := time.Parse(models.DateFormat, "2024-04-01")
	s.Require().NoError(err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.PolicyRecord{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		PolicyNumber:  number,
		HolderName:    "Asha Rao",
		VehicleNumber: "KA01AB1234",
		InsurerName:   "Acme General",
		Category:      models.CategoryVehicle,
		ActiveDate:    active,
		ExpiryDate:    active.AddDate(0, 0, models.DefaultTermDays),
		SumInsured:    500000,
		NetPremium:    12000,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	rec := s.record("owner-1", "POL-100")
	s.Require().NoError(s.store.Insert(ctx, rec))

	got, err := s.store.GetByID(ctx, "owner-1", rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.PolicyNumber, got.PolicyNumber)
	s.Equal(rec.SumInsured, got.SumInsured)
	s.Nil(got.PolicyTermYears)
	s.True(rec.ActiveDate.Equal(got.ActiveDate))
}

func (s *PostgresStoreSuite) TestUniqueIndexClosesTheRace() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.record("owner-1", "POL-100")))

	err := s.store.Insert(ctx, s.record("owner-1", " pol-100 "))
	s.ErrorIs(err, store.ErrPolicyNumberTaken)

	s.NoError(s.store.Insert(ctx, s.record("owner-2", "POL-100")))
}

func (s *PostgresStoreSuite) TestListByOwnerOrdersByCreation() {
	ctx := context.Background()
	first := s.record("owner-1", "POL-1")
	second := s.record("owner-1", "POL-2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	s.Require().NoError(s.store.Insert(ctx, second))
	s.Require().NoError(s.store.Insert(ctx, first))

	records, err := s.store.ListByOwner(ctx, "owner-1")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("POL-1", records[0].PolicyNumber)
	s.Equal("POL-2", records[1].PolicyNumber)
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()
	rec := s.record("owner-1", "POL-100")
	s.Require().NoError(s.store.Insert(ctx, rec))

	rec.HolderName = "Asha R. Rao"
	rec.UpdatedAt = time.Now().UTC()
	s.Require().NoError(s.store.Update(ctx, rec))

	got, err := s.store.GetByID(ctx, "owner-1", rec.ID)
	s.Require().NoError(err)
	s.Equal("Asha R. Rao", got.HolderName)
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"policydesk/internal/policy/models"
)

// PostgresStore persists policy records in PostgreSQL. A unique index on
// (owner_id, normalized policy number) backs the cross-session race guarantee:
// two tabs can both pass duplicate-check but only one insert wins.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `id, owner_id, policy_number, holder_name, vehicle_number, vehicle_make,
	vehicle_model, insurer_name, contact_number, category, active_date, expiry_date,
	sum_insured, net_premium, gross_premium, policy_term_years, premium_term_years,
	document_path, created_at, updated_at`

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.PolicyRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM policy_records WHERE owner_id = $1 ORDER BY created_at, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.PolicyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetByID(ctx context.Context, ownerID, id string) (*models.PolicyRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM policy_records WHERE owner_id = $1 AND id = $2`,
		ownerID, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *models.PolicyRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO policy_records (`+recordColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		rec.ID, rec.OwnerID, rec.PolicyNumber, rec.HolderName, rec.VehicleNumber, rec.VehicleMake,
		rec.VehicleModel, rec.InsurerName, rec.ContactNumber, rec.Category, rec.ActiveDate,
		rec.ExpiryDate, rec.SumInsured, rec.NetPremium, rec.GrossPremium, rec.PolicyTermYears,
		rec.PremiumTermYears, rec.DocumentPath, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPolicyNumberTaken
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.PolicyRecord) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policy_records SET
			policy_number = $3, holder_name = $4, vehicle_number = $5, vehicle_make = $6,
			vehicle_model = $7, insurer_name = $8, contact_number = $9, category = $10,
			active_date = $11, expiry_date = $12, sum_insured = $13, net_premium = $14,
			gross_premium = $15, policy_term_years = $16, premium_term_years = $17,
			document_path = $18, updated_at = $19
		 WHERE owner_id = $1 AND id = $2`,
		rec.OwnerID, rec.ID, rec.PolicyNumber, rec.HolderName, rec.VehicleNumber, rec.VehicleMake,
		rec.VehicleModel, rec.InsurerName, rec.ContactNumber, rec.Category, rec.ActiveDate,
		rec.ExpiryDate, rec.SumInsured, rec.NetPremium, rec.GrossPremium, rec.PolicyTermYears,
		rec.PremiumTermYears, rec.DocumentPath, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPolicyNumberTaken
		}
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM policy_records WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*models.PolicyRecord, error) {
	var rec models.PolicyRecord
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.PolicyNumber, &rec.HolderName, &rec.VehicleNumber,
		&rec.VehicleMake, &rec.VehicleModel, &rec.InsurerName, &rec.ContactNumber, &rec.Category,
		&rec.ActiveDate, &rec.ExpiryDate, &rec.SumInsured, &rec.NetPremium, &rec.GrossPremium,
		&rec.PolicyTermYears, &rec.PremiumTermYears, &rec.DocumentPath, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

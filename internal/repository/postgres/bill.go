package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rentdesk-backend/internal/domain"
	"rentdesk-backend/internal/logger"
	"rentdesk-backend/internal/repository"
)

const billColumns = `
	id, bill_number, tenant_id, room_id, month, year, due_date, items,
	total_amount, paid_amount, remaining_amount,
	penalty_amount, penalty_days, penalty_rate, penalty_applied_date,
	status, version, created_at, updated_at`

type billRepository struct {
	db *sql.DB
}

func NewBillRepository(db *sql.DB) repository.BillRepository {
	return &billRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	var (
		b           domain.Bill
		items       []byte
		appliedDate sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.BillNumber, &b.TenantID, &b.RoomID, &b.Month, &b.Year, &b.DueDate, &items,
		&b.TotalAmount, &b.PaidAmount, &b.RemainingAmount,
		&b.Penalty.Amount, &b.Penalty.Days, &b.Penalty.Rate, &appliedDate,
		&b.Status, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.DueDate = b.DueDate.UTC()
	if appliedDate.Valid {
		t := appliedDate.Time
		b.Penalty.AppliedDate = &t
	}
	if len(items) > 0 && string(items) != "null" {
		b.Items = &domain.BillItems{}
		if err := json.Unmarshal(items, b.Items); err != nil {
			return nil, fmt.Errorf("decode items of bill %d: %w", b.ID, err)
		}
	}
	return &b, nil
}

func (r *billRepository) GetByID(ctx context.Context, id int32) (*domain.Bill, error) {
	logger.EnterMethod("billRepository.GetByID", "billID", id)

	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`
	logger.DatabaseCall("SELECT", "bills", "billID", id)

	bill, err := scanBill(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		logger.ExitMethodWithError("billRepository.GetByID", domain.ErrBillNotFound, "billID", id)
		return nil, domain.ErrBillNotFound
	}
	if err != nil {
		logger.ExitMethodWithError("billRepository.GetByID", err, "billID", id)
		return nil, fmt.Errorf("get bill %d: %w", id, err)
	}

	logger.ExitMethod("billRepository.GetByID", "billID", id, "version", bill.Version)
	return bill, nil
}

func (r *billRepository) ListForPenalty(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error) {
	logger.EnterMethod("billRepository.ListForPenalty", "statuses", filter.Statuses, "dueBefore", filter.DueBefore)

	query := `SELECT ` + billColumns + ` FROM bills WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if len(filter.Statuses) > 0 {
		statusStrs := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statusStrs[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statusStrs))
		argIndex++
	}

	if !filter.DueBefore.IsZero() {
		query += fmt.Sprintf(" AND due_date < $%d", argIndex)
		args = append(args, filter.DueBefore)
	}

	query += " ORDER BY due_date ASC, id ASC"

	logger.DatabaseCall("SELECT", "bills", "filter", "penalty")
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.ExitMethodWithError("billRepository.ListForPenalty", err)
		return nil, fmt.Errorf("list bills for penalty: %w", err)
	}
	defer rows.Close()

	bills := []domain.Bill{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			logger.ExitMethodWithError("billRepository.ListForPenalty", err)
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, *b)
	}
	if err := rows.Err(); err != nil {
		logger.ExitMethodWithError("billRepository.ListForPenalty", err)
		return nil, fmt.Errorf("iterate bills: %w", err)
	}

	logger.DatabaseResult("SELECT", int64(len(bills)), nil)
	logger.ExitMethod("billRepository.ListForPenalty", "count", len(bills))
	return bills, nil
}

func (r *billRepository) Update(ctx context.Context, bill *domain.Bill) error {
	logger.EnterMethod("billRepository.Update", "billID", bill.ID, "version", bill.Version, "status", bill.Status)

	query := `
		UPDATE bills SET
			total_amount = $1,
			remaining_amount = $2,
			penalty_amount = $3,
			penalty_days = $4,
			penalty_rate = $5,
			penalty_applied_date = $6,
			status = $7,
			version = version + 1,
			updated_at = $8
		WHERE id = $9 AND version = $10
		RETURNING version, updated_at
	`

	var appliedDate sql.NullTime
	if bill.Penalty.AppliedDate != nil {
		appliedDate = sql.NullTime{Time: *bill.Penalty.AppliedDate, Valid: true}
	}

	logger.DatabaseCall("UPDATE", "bills", "billID", bill.ID, "version", bill.Version)
	err := r.db.QueryRowContext(ctx, query,
		bill.TotalAmount, bill.RemainingAmount,
		bill.Penalty.Amount, bill.Penalty.Days, bill.Penalty.Rate, appliedDate,
		bill.Status, time.Now().UTC(), bill.ID, bill.Version,
	).Scan(&bill.Version, &bill.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("UPDATE", 0, domain.ErrVersionConflict, "billID", bill.ID)
		logger.ExitMethodWithError("billRepository.Update", domain.ErrVersionConflict, "billID", bill.ID)
		return domain.ErrVersionConflict
	}
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "billID", bill.ID)
		logger.ExitMethodWithError("billRepository.Update", err, "billID", bill.ID)
		return fmt.Errorf("update bill %d: %w", bill.ID, err)
	}

	logger.DatabaseResult("UPDATE", 1, nil, "billID", bill.ID)
	logger.ExitMethod("billRepository.Update", "billID", bill.ID, "version", bill.Version)
	return nil
}

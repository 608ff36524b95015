package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"microlend/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository persists loans in a SQLite database file.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func (r *SQLiteRepository) SaveQuote(ctx context.Context, terms domain.LoanTerms, summary domain.ScheduleSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes (principal, annual_rate, term_months, monthly_payment, total_repayment, total_interest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		terms.Principal, terms.AnnualRatePercent, terms.TermMonths,
		summary.MonthlyPayment, summary.TotalRepayment, summary.TotalInterest,
		toUnix(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateRequest(ctx context.Context, req domain.LoanRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loan_requests (
			id, borrower, amount, purpose, term_months, annual_rate, business_name, risk,
			monthly_payment, total_repayment, total_interest, funded_amount, status,
			network, tx_hash, created_at, funded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Borrower, req.Amount, req.Purpose, req.TermMonths, req.AnnualRatePercent,
		req.BusinessName, string(req.Risk),
		req.Summary.MonthlyPayment, req.Summary.TotalRepayment, req.Summary.TotalInterest,
		req.FundedAmount, string(req.Status), req.Network, req.TxHash,
		toUnix(req.CreatedAt), nullableTime(req.FundedAt),
	)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("loan request %s: %w", req.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert loan request %s: %w", req.ID, err)
	}
	return nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

const selectRequest = `
	SELECT id, borrower, amount, purpose, term_months, annual_rate, business_name, risk,
		monthly_payment, total_repayment, total_interest, funded_amount, status,
		network, tx_hash, created_at, funded_at
	FROM loan_requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.LoanRequest, error) {
	var (
		req       domain.LoanRequest
		risk      string
		status    string
		createdAt int64
		fundedAt  sql.NullInt64
	)
	err := row.Scan(
		&req.ID, &req.Borrower, &req.Amount, &req.Purpose, &req.TermMonths, &req.AnnualRatePercent,
		&req.BusinessName, &risk,
		&req.Summary.MonthlyPayment, &req.Summary.TotalRepayment, &req.Summary.TotalInterest,
		&req.FundedAmount, &status, &req.Network, &req.TxHash, &createdAt, &fundedAt,
	)
	if err != nil {
		return domain.LoanRequest{}, err
	}
	req.Risk = domain.RiskLevel(risk)
	req.Status = domain.LoanStatus(status)
	req.CreatedAt = fromUnix(createdAt)
	req.FundedAt = timePtr(fundedAt)
	return req, nil
}

func (r *SQLiteRepository) GetRequest(ctx context.Context, id string) (domain.LoanRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LoanRequest{}, ErrNotFound
	}
	if err != nil {
		return domain.LoanRequest{}, fmt.Errorf("get loan request %s: %w", id, err)
	}
	return req, nil
}

func (r *SQLiteRepository) ListRequests(ctx context.Context) ([]domain.LoanRequest, error) {
	rows, err := r.db.QueryContext(ctx, selectRequest+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list loan requests: %w", err)
	}
	defer rows.Close()

	out := []domain.LoanRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateRequest(ctx context.Context, req domain.LoanRequest) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE loan_requests SET funded_amount = ?, status = ?, funded_at = ?
		WHERE id = ?`,
		req.FundedAmount, string(req.Status), nullableTime(req.FundedAt), req.ID,
	)
	if err != nil {
		return fmt.Errorf("update loan request %s: %w", req.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) AddFunding(ctx context.Context, f domain.Funding) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fundings (id, loan_id, lender, amount, expected_return, network, tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.LoanID, f.Lender, f.Amount, f.ExpectedReturn, f.Network, f.TxHash, toUnix(f.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert funding: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListFundings(ctx context.Context, loanID string) ([]domain.Funding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, loan_id, lender, amount, expected_return, network, tx_hash, created_at
		FROM fundings WHERE loan_id = ? ORDER BY created_at`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list fundings: %w", err)
	}
	defer rows.Close()

	var out []domain.Funding
	for rows.Next() {
		var (
			f         domain.Funding
			createdAt int64
		)
		if err := rows.Scan(&f.ID, &f.LoanID, &f.Lender, &f.Amount, &f.ExpectedReturn, &f.Network, &f.TxHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan funding: %w", err)
		}
		f.CreatedAt = fromUnix(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveInstallments(ctx context.Context, installments []domain.Installment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO installments (loan_id, month, due_date, amount, principal_component, interest_component, status, paid_at, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare installment insert: %w", err)
	}
	defer stmt.Close()

	for _, inst := range installments {
		_, err := stmt.ExecContext(ctx,
			inst.LoanID, inst.Month, toUnix(inst.DueDate), inst.Amount,
			inst.PrincipalComponent, inst.InterestComponent, string(inst.Status),
			nullableTime(inst.PaidAt), inst.TxHash,
		)
		if err != nil {
			return fmt.Errorf("insert installment %s/%d: %w", inst.LoanID, inst.Month, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListInstallments(ctx context.Context, loanID string) ([]domain.Installment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT loan_id, month, due_date, amount, principal_component, interest_component, status, paid_at, tx_hash
		FROM installments WHERE loan_id = ? ORDER BY month`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	defer rows.Close()

	var out []domain.Installment
	for rows.Next() {
		var (
			inst    domain.Installment
			dueDate int64
			status  string
			paidAt  sql.NullInt64
		)
		err := rows.Scan(&inst.LoanID, &inst.Month, &dueDate, &inst.Amount,
			&inst.PrincipalComponent, &inst.InterestComponent, &status, &paidAt, &inst.TxHash)
		if err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		inst.DueDate = fromUnix(dueDate)
		inst.Status = domain.InstallmentStatus(status)
		inst.PaidAt = timePtr(paidAt)
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateInstallment(ctx context.Context, inst domain.Installment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE installments SET status = ?, paid_at = ?, tx_hash = ?
		WHERE loan_id = ? AND month = ?`,
		string(inst.Status), nullableTime(inst.PaidAt), inst.TxHash, inst.LoanID, inst.Month,
	)
	if err != nil {
		return fmt.Errorf("update installment %s/%d: %w", inst.LoanID, inst.Month, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

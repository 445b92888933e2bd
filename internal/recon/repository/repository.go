package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrVersionConflict  = errors.New("record was modified concurrently")
	ErrDuplicateOrderID = errors.New("order already has a payment submission")
)

// postgres unique_violation
const uniqueViolation = "23505"

// isUniqueViolation reports a unique index violation whose constraint name
// mentions column.
func isUniqueViolation(err error, column string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return strings.Contains(pgErr.ConstraintName, column)
}

// Repositories reconciliation repositories bound to one *gorm.DB (or transaction)
type Repositories struct {
	db          *gorm.DB
	Submission  *SubmissionRepository
	Batch       *BatchRepository
	Settlement  *SettlementRepository
	Payment     *PaymentRepository
	ActivityLog *ActivityLogRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Submission:  NewSubmissionRepository(db),
		Batch:       NewBatchRepository(db),
		Settlement:  NewSettlementRepository(db),
		Payment:     NewPaymentRepository(db),
		ActivityLog: NewActivityLogRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single database transaction.
// Returning an error from fn rolls everything back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// DB exposes the underlying handle for health checks and migrations.
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

// orderBy maps the public sort tokens to ORDER BY clauses; the amount
// column differs per table. Unknown tokens fall back to newest first.
func orderBy(sort, amountColumn string) string {
	switch sort {
	case "oldest":
		return "created_at ASC, id ASC"
	case "amount_desc":
		return amountColumn + " DESC, id DESC"
	case "amount_asc":
		return amountColumn + " ASC, id ASC"
	default:
		return "created_at DESC, id DESC"
	}
}

// statusList accepts "A" or "A,B" and returns the trimmed, non-empty values.
func statusList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// maxPage bounds list paging so (page-1)*pageSize cannot overflow
const maxPage = 100000

func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if pageSize < 1 {
		return 0
	}
	return (page - 1) * pageSize
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// dayAfter turns an inclusive YYYY-MM-DD end date into an exclusive bound.
func dayAfter(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02")
}

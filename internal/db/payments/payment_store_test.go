package paymentsdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"paygate/internal/payments"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

var paymentColumns = []string{"payment_id", "reference", "amount", "currency", "status", "retries", "created_at", "updated_at"}

func testPayment() *payments.Payment {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &payments.Payment{
		ID:        "pay-1",
		Reference: "order-001",
		Amount:    decimal.RequireFromString("500.00"),
		Currency:  "USD",
		Status:    payments.StatusPending,
		Retries:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func expectSchema(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("idx_payments_status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("idx_payments_reference").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("idx_payments_created_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestPaymentStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	expectSchema(mock)
	mock.ExpectClose()

	store := NewPaymentStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestPaymentStore_InitSchemaError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payments").
		WillReturnError(errors.New("boom"))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	err := store.InitSchema(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	appErr, ok := payments.AsError(err)
	if !ok || appErr.Code != payments.CodePersistence {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPaymentStore_WithSchemaHelper(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	expectSchema(mock)
	mock.ExpectClose()

	store, err := NewPaymentStoreWithSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("helper: %v", err)
	}
	if store == nil {
		t.Fatalf("expected store")
	}
}

func TestPaymentStore_WithSchemaHelperError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payments").
		WillReturnError(errors.New("boom"))
	mock.ExpectClose()

	store, err := NewPaymentStoreWithSchema(context.Background(), db)
	if err == nil {
		t.Fatalf("expected error")
	}
	if store != nil {
		t.Fatalf("expected nil store on error")
	}
}

func TestPaymentStore_Save(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	payment := testPayment()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(payment.ID, payment.Reference, "500.00", payment.Currency, "PENDING", payment.Retries, payment.CreatedAt, payment.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	if err := store.Save(context.Background(), payment); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestPaymentStore_SaveError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	payment := testPayment()
	mock.ExpectExec("INSERT INTO payments").
		WillReturnError(errors.New("boom"))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	err := store.Save(context.Background(), payment)
	if err == nil {
		t.Fatalf("expected error")
	}
	appErr, ok := payments.AsError(err)
	if !ok || appErr.Code != payments.CodePersistence {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPaymentStore_FindByID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(paymentColumns).
		AddRow("pay-1", "order-001", "500.00", "USD", "SUCCESS", 0, now, now)
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE payment_id").
		WithArgs("pay-1").
		WillReturnRows(rows)
	mock.ExpectClose()

	store := NewPaymentStore(db)
	payment, err := store.FindByID(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if payment == nil {
		t.Fatalf("expected payment")
	}
	if payment.ID != "pay-1" || payment.Status != payments.StatusSuccess {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if payment.Amount.String() != "500.00" {
		t.Fatalf("expected exact amount, got %s", payment.Amount.String())
	}
}

func TestPaymentStore_FindByID_Absent(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE payment_id").
		WithArgs("pay-404").
		WillReturnRows(sqlmock.NewRows(paymentColumns))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	payment, err := store.FindByID(context.Background(), "pay-404")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if payment != nil {
		t.Fatalf("expected nil for absent payment, got %+v", payment)
	}
}

func TestPaymentStore_FindByID_BadAmount(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(paymentColumns).
		AddRow("pay-1", "order-001", "not-a-number", "USD", "PENDING", 0, now, now)
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE payment_id").
		WithArgs("pay-1").
		WillReturnRows(rows)
	mock.ExpectClose()

	store := NewPaymentStore(db)
	if _, err := store.FindByID(context.Background(), "pay-1"); err == nil {
		t.Fatalf("expected amount parse error")
	}
}

func TestPaymentStore_Update(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	payment := testPayment()
	payment.Status = payments.StatusFailed
	payment.Retries = 1

	mock.ExpectExec("UPDATE payments").
		WithArgs(payment.ID, payment.Reference, "500.00", payment.Currency, "FAILED", 1, payment.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	if err := store.Update(context.Background(), payment); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestPaymentStore_Update_Missing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	payment := testPayment()
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	err := store.Update(context.Background(), payment)
	if err == nil {
		t.Fatalf("expected error")
	}
	appErr, ok := payments.AsError(err)
	if !ok || appErr.Code != payments.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPaymentStore_Update_RowsAffectedError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected boom")))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	if err := store.Update(context.Background(), testPayment()); err == nil {
		t.Fatalf("expected rows affected error")
	}
}

func TestPaymentStore_FindAll(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(paymentColumns).
		AddRow("pay-2", "order-002", "20", "USD", "PENDING", 0, now.Add(time.Minute), now.Add(time.Minute)).
		AddRow("pay-1", "order-001", "10", "USD", "SUCCESS", 0, now, now)
	mock.ExpectQuery("SELECT (.+) FROM payments ORDER BY created_at DESC LIMIT").
		WithArgs(100, 0).
		WillReturnRows(rows)
	mock.ExpectClose()

	store := NewPaymentStore(db)
	page, err := store.FindAll(context.Background(), "", 100, 0)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(page))
	}
	if page[0].ID != "pay-2" || page[1].ID != "pay-1" {
		t.Fatalf("unexpected order: %s, %s", page[0].ID, page[1].ID)
	}
}

func TestPaymentStore_FindAll_StatusFilter(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(paymentColumns).
		AddRow("pay-1", "order-001", "10", "USD", "FAILED", 2, now, now)
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE status").
		WithArgs("FAILED", 10, 0).
		WillReturnRows(rows)
	mock.ExpectClose()

	store := NewPaymentStore(db)
	page, err := store.FindAll(context.Background(), payments.StatusFailed, 10, 0)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(page) != 1 || page[0].Status != payments.StatusFailed {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestPaymentStore_FindAll_QueryError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT (.+) FROM payments ORDER BY created_at DESC LIMIT").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectClose()

	store := NewPaymentStore(db)
	if _, err := store.FindAll(context.Background(), "", 100, 0); err == nil {
		t.Fatalf("expected query error")
	}
}

func TestPaymentStore_Count(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	total, err := store.Count(context.Background(), "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 42 {
		t.Fatalf("expected 42, got %d", total)
	}
}

func TestPaymentStore_Count_StatusFilter(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("SUCCESS").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectClose()

	store := NewPaymentStore(db)
	total, err := store.Count(context.Background(), payments.StatusSuccess)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 7 {
		t.Fatalf("expected 7, got %d", total)
	}
}

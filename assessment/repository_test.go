package assessment

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"marketflow/catalog"
)

func TestApplyTransition_CommitsAllWrites(t *testing.T) {
	at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	tx := &fakeTx{
		rows: []fakeRow{
			currentRow(StatusPendingPhysicalReview),
			{values: []any{"rejected", (*time.Time)(nil), (*time.Time)(nil), at}},
			{values: []any{"note-1"}},
		},
		execs: []fakeExec{productLocked(), {tag: pgconn.NewCommandTag("UPDATE 1")}},
	}
	repo := NewRepository(&fakePool{tx: tx})

	reason := "counterfeit suspected"
	res, err := repo.ApplyTransition(context.Background(), TransitionParams{
		ProductID: "product-1",
		Next:      StatusRejected,
		Note:      &Note{Kind: NoteRejection, Description: reason},
		At:        at,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Previous != StatusPendingPhysicalReview || res.Assessment.Status != StatusRejected {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Assessment.SellerID != "seller-1" {
		t.Errorf("expected seller id carried from lock query, got %q", res.Assessment.SellerID)
	}
	if !tx.committed {
		t.Errorf("expected commit")
	}
	if len(tx.queries) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(tx.queries))
	}
	if !strings.Contains(tx.queries[0], "FROM products") || !strings.Contains(tx.queries[0], "FOR UPDATE") {
		t.Errorf("expected product row to be locked first, got %s", tx.queries[0])
	}
	if !strings.Contains(tx.queries[1], "FOR UPDATE") {
		t.Errorf("expected current assessment to be locked")
	}
	if !strings.Contains(tx.queries[3], "assessment_rejections") {
		t.Errorf("expected rejection note insert, got %s", tx.queries[3])
	}
	if got := tx.args[4][1]; got != "rejected" {
		t.Errorf("expected product approval mirror rejected, got %v", got)
	}
}

func TestApplyTransition_ProductUpdateFailureRollsBack(t *testing.T) {
	at := time.Now().UTC()
	tx := &fakeTx{
		rows: []fakeRow{
			currentRow(StatusWaitingForSample),
			{values: []any{"verified", &at, (*time.Time)(nil), at}},
			{values: []any{"note-1"}},
		},
		execs: []fakeExec{productLocked(), {err: errors.New("connection reset")}},
	}
	repo := NewRepository(&fakePool{tx: tx})

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		ProductID: "product-1",
		Next:      StatusVerified,
		Note:      &Note{Kind: NoteApproval},
		At:        at,
	})
	if err == nil {
		t.Fatalf("expected error when product mirror fails")
	}
	if tx.committed {
		t.Errorf("expected no commit after failed write")
	}
	if !tx.rolled {
		t.Errorf("expected rollback")
	}
}

func TestApplyTransition_GuardRefusalWritesNothing(t *testing.T) {
	tx := &fakeTx{rows: []fakeRow{currentRow(StatusVerified)}, execs: []fakeExec{productLocked()}}
	repo := NewRepository(&fakePool{tx: tx})

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		ProductID: "product-1",
		Next:      StatusPendingDigitalReview,
		At:        time.Now(),
		Guard:     CheckTransition,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(tx.queries) != 2 {
		t.Errorf("expected only the lock queries, got %d statements", len(tx.queries))
	}
	if tx.committed || !tx.rolled {
		t.Errorf("expected rollback without commit")
	}
}

func TestApplyTransition_MissingAssessment(t *testing.T) {
	tx := &fakeTx{rows: []fakeRow{{err: pgx.ErrNoRows}}, execs: []fakeExec{productLocked()}}
	repo := NewRepository(&fakePool{tx: tx})

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{ProductID: "product-1", Next: StatusVerified, At: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyTransition_MissingProduct(t *testing.T) {
	tx := &fakeTx{execs: []fakeExec{{tag: pgconn.NewCommandTag("SELECT 0")}}}
	repo := NewRepository(&fakePool{tx: tx})

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{ProductID: "missing", Next: StatusVerified, At: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(tx.queries) != 1 {
		t.Errorf("expected to stop after the product lock, got %d statements", len(tx.queries))
	}
}

func TestApplyTransition_MalformedProductID(t *testing.T) {
	tx := &fakeTx{execs: []fakeExec{{err: &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}}}}
	repo := NewRepository(&fakePool{tx: tx})

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{ProductID: "not-a-uuid", Next: StatusVerified, At: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if tx.committed {
		t.Errorf("expected no commit")
	}
}

func TestCreateProduct_AssessmentFailureRollsBackProduct(t *testing.T) {
	at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	tx := &fakeTx{rows: []fakeRow{
		productRow(at),
		{err: errors.New("connection reset")},
	}}
	repo := NewRepository(&fakePool{tx: tx})

	_, _, err := repo.CreateProduct(context.Background(), catalog.CreateParams{SellerID: "seller-1", Name: "Clay vase"}, at)
	if err == nil {
		t.Fatalf("expected error when the assessment insert fails")
	}
	if tx.committed || !tx.rolled {
		t.Errorf("expected the product insert to be rolled back")
	}
	if len(tx.queries) != 2 || !strings.Contains(tx.queries[0], "INSERT INTO products") {
		t.Errorf("expected product then assessment insert in one tx, got %v", tx.queries)
	}
}

func TestCreateProduct_CommitsBoth(t *testing.T) {
	at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	tx := &fakeTx{rows: []fakeRow{
		productRow(at),
		{values: []any{"assessment-1", "pending_digital_review", at, at, at}},
	}}
	repo := NewRepository(&fakePool{tx: tx})

	p, a, err := repo.CreateProduct(context.Background(), catalog.CreateParams{SellerID: "seller-1", Name: "Clay vase"}, at)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !tx.committed {
		t.Errorf("expected commit")
	}
	if a.ProductID != p.ID || a.SellerID != "seller-1" || a.Status != StatusPendingDigitalReview {
		t.Errorf("unexpected assessment %+v", a)
	}
	if got := tx.args[1][0]; got != "product-1" {
		t.Errorf("expected assessment for the new product, got %v", got)
	}
}

func productRow(at time.Time) fakeRow {
	return fakeRow{values: []any{"product-1", "seller-1", "Clay vase", catalog.ApprovalPending, at, at}}
}

func productLocked() fakeExec {
	return fakeExec{tag: pgconn.NewCommandTag("SELECT 1")}
}

func currentRow(status Status) fakeRow {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		"assessment-1", "product-1", "seller-1", string(status), created,
		(*time.Time)(nil), (*time.Time)(nil), created, created,
	}}
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	return f.tx, nil
}

func (f *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("fakeRow: column count mismatch")
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type fakeExec struct {
	tag pgconn.CommandTag
	err error
}

type fakeTx struct {
	rows      []fakeRow
	execs     []fakeExec
	queries   []string
	args      [][]any
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if len(f.execs) == 0 {
		return pgconn.CommandTag{}, errors.New("fakeTx: unexpected exec")
	}
	next := f.execs[0]
	f.execs = f.execs[1:]
	return next.tag, next.err
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if len(f.rows) == 0 {
		return fakeRow{err: errors.New("fakeTx: unexpected query")}
	}
	next := f.rows[0]
	f.rows = f.rows[1:]
	return next
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

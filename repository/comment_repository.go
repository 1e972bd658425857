package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"letDrone/internal/db"
	"letDrone/models"
)

// inChunk keeps IN lists under SQLite's bound parameter limit.
const inChunk = 500

type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

var commentColumns = []any{"id", "prescription_id", "content", "author_id", "parent_id", "created_at", "updated_at"}

func scanComment(row interface{ Scan(...any) error }) (*models.Comment, error) {
	var c models.Comment
	var parent sql.NullInt64
	if err := row.Scan(&c.ID, &c.PrescriptionID, &c.Content, &c.AuthorID, &parent, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ParentID = intPtr(parent)
	return &c, nil
}

// Create inserts a comment. A reply's parent must exist, belong to the same
// prescription and sit less than models.MaxThreadDepth levels deep.
func (r *CommentRepository) Create(ctx context.Context, c *models.Comment) (*models.Comment, error) {
	if c == nil {
		return nil, errors.New("comment is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if c.ParentID != nil {
			if err := checkParent(ctx, tx, c.PrescriptionID, *c.ParentID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO comments (prescription_id, content, author_id, parent_id, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
			c.PrescriptionID, c.Content, c.AuthorID, nullInt(c.ParentID), c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return err
		}
		c.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// checkParent walks up from parentID one row at a time.
func checkParent(ctx context.Context, q querier, prescriptionID string, parentID int64) error {
	var thread string
	var up sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT prescription_id, parent_id FROM comments WHERE id = ?`, parentID).Scan(&thread, &up)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrParentNotFound
	}
	if err != nil {
		return err
	}
	if thread != prescriptionID {
		return ErrParentMismatch
	}
	// depth counts the new reply plus every ancestor.
	depth := 2
	for up.Valid {
		if depth >= models.MaxThreadDepth {
			return ErrThreadTooDeep
		}
		if err := q.QueryRowContext(ctx, `SELECT parent_id FROM comments WHERE id = ?`, up.Int64).Scan(&up); err != nil {
			return err
		}
		depth++
	}
	if depth > models.MaxThreadDepth {
		return ErrThreadTooDeep
	}
	return nil
}

func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	query, args, err := dialect.From("comments").Select(commentColumns...).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	c, err := scanComment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// CommentFilter narrows comment listings. PatientID limits results to
// threads on that patient's prescriptions.
type CommentFilter struct {
	PrescriptionID *string
	PatientID      *int64
	Limit          int
	Offset         int
}

// List returns comments ordered by creation.
func (r *CommentRepository) List(ctx context.Context, f CommentFilter) ([]models.Comment, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ds := dialect.From("comments").Select(commentColumns...).Prepared(true)
	if f.PrescriptionID != nil {
		ds = ds.Where(goqu.C("prescription_id").Eq(*f.PrescriptionID))
	}
	if f.PatientID != nil {
		owned := dialect.From("prescriptions").Select("id").Where(goqu.C("author_id").Eq(*f.PatientID))
		ds = ds.Where(goqu.C("prescription_id").In(owned))
	}
	query, args, err := ds.Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		Limit(uint(limit)).Offset(uint(offset)).ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteTree deletes the comment and every reply below it in one
// transaction and returns how many rows went. Zero means id did not exist.
func (r *CommentRepository) DeleteTree(ctx context.Context, id int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var n int
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM comments WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		n, err = deleteCommentTrees(ctx, tx, []int64{id})
		return err
	})
	return n, err
}

// deleteCommentTrees collects the subtrees under roots level by level and
// deletes them deepest level first, so no statement leaves a reply whose
// parent is gone.
func deleteCommentTrees(ctx context.Context, q querier, roots []int64) (int, error) {
	if len(roots) == 0 {
		return 0, nil
	}
	seen := make(map[int64]bool, len(roots))
	level := make([]int64, 0, len(roots))
	for _, id := range roots {
		if !seen[id] {
			seen[id] = true
			level = append(level, id)
		}
	}
	levels := [][]int64{level}
	for len(level) > 0 {
		var next []int64
		for _, chunk := range chunks(level) {
			query, args, err := dialect.From("comments").Select("id").Where(goqu.C("parent_id").In(chunk)).Prepared(true).ToSQL()
			if err != nil {
				return 0, err
			}
			ids, err := collectIDs(ctx, q, query, args...)
			if err != nil {
				return 0, err
			}
			for _, id := range ids {
				if !seen[id] {
					seen[id] = true
					next = append(next, id)
				}
			}
		}
		if len(next) > 0 {
			levels = append(levels, next)
		}
		level = next
	}

	total := 0
	for i := len(levels) - 1; i >= 0; i-- {
		for _, chunk := range chunks(levels[i]) {
			query, args, err := dialect.Delete("comments").Where(goqu.C("id").In(chunk)).Prepared(true).ToSQL()
			if err != nil {
				return 0, err
			}
			res, err := q.ExecContext(ctx, query, args...)
			if err != nil {
				return 0, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, err
			}
			total += int(n)
		}
	}
	return total, nil
}

func chunks(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > inChunk {
		out = append(out, ids[:inChunk])
		ids = ids[inChunk:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func collectIDs(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"letDrone/internal/db"
	"letDrone/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, is_staff, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsStaff, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. Returns the created User with its generated ID.
func (r *UserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if u == nil {
		return nil, errors.New("user is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return insertUser(ctx, r.db, u)
}

func insertUser(ctx context.Context, q querier, u *models.User) (*models.User, error) {
	u.CreatedAt = now()
	res, err := q.ExecContext(ctx, `INSERT INTO users (username, email, password_hash, is_staff, created_at) VALUES (?,?,?,?,?)`,
		u.Username, u.Email, u.PasswordHash, u.IsStaff, u.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = id
	return u, nil
}

// CreatePatientAccount inserts the user and an empty patient profile in one
// transaction. A duplicate username leaves nothing behind.
func (r *UserRepository) CreatePatientAccount(ctx context.Context, u *models.User) (*models.User, *models.Patient, error) {
	if u == nil {
		return nil, nil, errors.New("user is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p *models.Patient
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		var err error
		p, err = insertPatient(ctx, tx, &models.Patient{UserID: u.ID})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, p, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	limit, offset = clampPage(limit, offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Update writes the mutable account fields (username, email, password hash).
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET username = ?, email = ?, password_hash = ? WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, u.ID)
	return err
}

// SetStaff toggles the admin flag.
func (r *UserRepository) SetStaff(ctx context.Context, id int64, staff bool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_staff = ? WHERE id = ?`, staff, id)
	return err
}

// Delete removes a user with its profiles. Reply subtrees under the user's
// comments go first since replies by other users would otherwise dangle.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		roots, err := collectIDs(ctx, tx, `SELECT id FROM comments WHERE author_id = ?`, id)
		if err != nil {
			return err
		}
		if _, err := deleteCommentTrees(ctx, tx, roots); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		return err
	})
}

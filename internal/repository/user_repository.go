package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/utils"
)

const userColumns = "id,email,password_hash,role,name,tel,vehicle_plate,vehicle_model,created_at,updated_at"

// UserRepo is the profile store backed by the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser is the input of Create.
type NewUser struct {
	Email    string
	Password string
	Name     string
	Tel      string
}

// Create hashes the password and inserts a PASSENGER profile with a fresh
// uuid.  A duplicate email yields ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, in NewUser, cost int) (model.User, error) {
	hash, err := utils.HashPassword(in.Password, cost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         model.RolePassenger,
		Name:         strings.TrimSpace(in.Name),
		Tel:          strings.TrimSpace(in.Tel),
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role, name, tel) VALUES (?,?,?,?,?,?)",
		u.ID, u.Email, u.PasswordHash, u.Role, u.Name, u.Tel)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	return u, nil
}

// GetByEmail fetches a profile by normalised email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a profile by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpgradeToOwner records vehicle details and switches the role to OWNER.
// An empty tel keeps the stored one.
func (r *UserRepo) UpgradeToOwner(ctx context.Context, id, plate, vehicleModel, tel string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, vehicle_plate=?, vehicle_model=?, tel=COALESCE(NULLIF(?, ''), tel), updated_at=UTC_TIMESTAMP() WHERE id=?",
		model.RoleOwner, plate, vehicleModel, tel, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a profile.  Its trips and orders in the inventory store
// are left to expire or finish on their own.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	var name, tel, plate, vehicleModel sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &name, &tel, &plate, &vehicleModel, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Name, u.Tel, u.VehiclePlate, u.VehicleModel = name.String, tel.String, plate.String, vehicleModel.String
	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

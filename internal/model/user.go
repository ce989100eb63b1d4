package model

import "time"

// Roles carried in the JWT "role" claim.
const (
	RolePassenger = "PASSENGER"
	RoleOwner     = "OWNER"
)

// User represents a profile row in the `users` table.  Every account can
// book seats; accounts upgraded to OWNER additionally carry vehicle
// details and may publish trips.
//
// Fields:
//
//	ID           – uuid primary key.
//	Email        – unique login.
//	PasswordHash – bcrypt hash.
//	Role         – PASSENGER or OWNER.
//	Name         – display name.
//	Tel          – contact number, copied onto trips and orders.
//	VehiclePlate – owner only.
//	VehicleModel – owner only.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	Name         string    // users.name
	Tel          string    // users.tel
	VehiclePlate string    // users.vehicle_plate
	VehicleModel string    // users.vehicle_model
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// IsOwner reports whether the profile may publish trips.
func (u *User) IsOwner() bool { return u.Role == RoleOwner }

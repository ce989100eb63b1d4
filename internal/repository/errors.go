// Package repository holds the read and profile data access layers.  Trips
// and orders are read straight from the inventory store; profiles and
// refresh tokens live in MySQL.
package repository

import "errors"

// ErrNotFound is returned when a row or record does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller may not see a resource owned by
// someone else.  Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrEmailExists is returned by UserRepo.Create on a duplicate email.
var ErrEmailExists = errors.New("email already exists")

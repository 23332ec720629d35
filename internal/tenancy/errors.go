package tenancy

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown is returned once the registry has been closed; new
	// connections are never created after shutdown begins.
	ErrShutdown = errors.New("tenancy: registry is shut down")
)

// VerificationError means the database catalog could not be queried, so the
// existence of the tenant's database is unknown. Requests must fail rather
// than proceed: connecting to a database MongoDB has never seen would
// implicitly create it.
type VerificationError struct {
	Subdomain string
	DBName    string
	Err       error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("cannot verify existence of database %q: %v", e.DBName, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// NotFoundError means no naming variant of the tenant's database exists.
// KnownDBs is the catalog snapshot taken at check time, kept for
// diagnostics in the 404 payload.
type NotFoundError struct {
	Subdomain string
	DBName    string
	KnownDBs  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("database %q does not exist for subdomain %q", e.DBName, e.Subdomain)
}

// ConnectionError wraps a failed dial to a tenant or central database.
type ConnectionError struct {
	DBName string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to database %q failed: %v", e.DBName, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

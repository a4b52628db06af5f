package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/mdm/internal/mdm/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrInvalidQuery marks client-supplied list parameters (sort, filter)
	// the driver refuses, as opposed to genuine storage failures.
	ErrInvalidQuery = errors.New("store: invalid query")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Accounts() Accounts
	Devices() Devices
	Tokens() Tokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., token
	// rotation on keep-alive). The caller MUST call Commit() or Rollback()
	// on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error, the
	// transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByUsername is used during the password exchange.
	GetAccountByUsername(ctx context.Context, username string) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, accountID string, newHash string) error

	// DeleteAccount cascades to issued_tokens (per schema).
	DeleteAccount(ctx context.Context, accountID string) error

	// IsEmpty returns true if there are no accounts.
	IsEmpty(ctx context.Context) (bool, error)
}

type Devices interface {
	// GetDeviceByID returns a device by id.
	GetDeviceByID(ctx context.Context, id string) (domain.Device, error)

	// CreateDevice inserts a new device (id is ULID).
	CreateDevice(ctx context.Context, d domain.Device) error

	// UpdateDevice replaces the mutable fields and bumps updated_at.
	UpdateDevice(ctx context.Context, d domain.Device) error

	// DeleteDevice removes a device.
	DeleteDevice(ctx context.Context, deviceID string) error

	// ListDevices returns one page of devices plus the total count under
	// the query's filter. Page is zero based.
	ListDevices(ctx context.Context, q domain.ListQuery) (domain.DeviceListPage, error)
}

type Tokens interface {
	// CreateToken stores a freshly minted token record.
	CreateToken(ctx context.Context, t domain.IssuedToken) error

	// GetTokenByID returns the token record by its jti.
	GetTokenByID(ctx context.Context, id string) (domain.IssuedToken, error)

	// RevokeToken flips revoked=1.
	RevokeToken(ctx context.Context, id string) error

	// RevokeAllAccountTokens bulk revocation for an account (e.g., password reset).
	RevokeAllAccountTokens(ctx context.Context, accountID string) error

	// DeleteExpiredTokens is housekeeping.
	DeleteExpiredTokens(ctx context.Context) error
}

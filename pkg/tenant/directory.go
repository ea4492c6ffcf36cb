package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"

	"github.com/vjranagit/dashboard/pkg/errs"
)

// Credentials are the store organization and token of one tenant.
type Credentials struct {
	Org   string `json:"org" yaml:"org"`
	Token string `json:"token" yaml:"token"`
}

// Complete reports whether both parts are present.
func (c Credentials) Complete() bool {
	return c.Org != "" && c.Token != ""
}

// Resolver maps a user to a tenant and a tenant to its store credentials.
type Resolver interface {
	// TenantForUser fails with errs.ErrTenantNotFound when the user has no tenant.
	TenantForUser(ctx context.Context, userID string) (string, error)

	// Credentials fails with errs.ErrTenantNotFound when the tenant does not
	// exist and errs.ErrCredentialsMissing when its record is incomplete.
	Credentials(ctx context.Context, tenantID string) (Credentials, error)
}

// Config holds directory configuration
type Config struct {
	// Path is the badger directory. Empty with InMemory set keeps everything in memory.
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// Directory is a Resolver backed by BadgerDB.
//
// Keys:
//
//	user/<userID>     -> tenant id
//	tenant/<tenantID> -> JSON Credentials
type Directory struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenDirectory opens (or creates) the directory database.
func OpenDirectory(cfg Config) (*Directory, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(cfg.Path, "directory"))
	}
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{db: db, logger: logger.With("component", "tenant-directory")}, nil
}

// TenantForUser implements Resolver.
func (d *Directory) TenantForUser(ctx context.Context, userID string) (string, error) {
	val, err := d.get(userKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) || (err == nil && len(val) == 0) {
		return "", errs.TenantNotFound(userID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "lookup tenant of user %q", userID)
	}
	return string(val), nil
}

// Credentials implements Resolver.
func (d *Directory) Credentials(ctx context.Context, tenantID string) (Credentials, error) {
	val, err := d.get(tenantKey(tenantID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Credentials{}, errs.TenantNotFound(tenantID)
	}
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "lookup credentials of tenant %q", tenantID)
	}

	var creds Credentials
	if err := json.Unmarshal(val, &creds); err != nil {
		d.logger.Warn("malformed credential record", "tenant", tenantID, "error", err.Error())
		return Credentials{}, errs.CredentialsMissing(tenantID)
	}
	if !creds.Complete() {
		return Credentials{}, errs.CredentialsMissing(tenantID)
	}
	return creds, nil
}

// AssignUser records that userID belongs to tenantID.
func (d *Directory) AssignUser(userID, tenantID string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(userID), []byte(tenantID))
	})
}

// PutCredentials stores the credential record of tenantID. Incomplete
// records are accepted; lookups then report missing credentials.
func (d *Directory) PutCredentials(tenantID string, creds Credentials) error {
	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tenantKey(tenantID), payload)
	})
}

// Seed is the on-disk format of a directory bootstrap file.
type Seed struct {
	Tenants map[string]Credentials `yaml:"tenants"`
	Users   map[string]string      `yaml:"users"`
}

// LoadSeed reads a YAML seed file and writes its records into d.
func (d *Directory) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return d.Apply(seed)
}

// Apply writes every record of seed in one transaction.
func (d *Directory) Apply(seed Seed) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		for id, creds := range seed.Tenants {
			payload, err := json.Marshal(creds)
			if err != nil {
				return err
			}
			if err := txn.Set(tenantKey(id), payload); err != nil {
				return err
			}
		}
		for user, tenantID := range seed.Users {
			if err := txn.Set(userKey(user), []byte(tenantID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}
	d.logger.Info("directory seeded", "tenants", len(seed.Tenants), "users", len(seed.Users))
	return nil
}

// Close closes the underlying database.
func (d *Directory) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Directory) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	return val, err
}

func userKey(userID string) []byte {
	return generateKey("user", userID)
}

func tenantKey(tenantID string) []byte {
	return generateKey("tenant", tenantID)
}

// generateKey generates a storage key for a directory record
func generateKey(kind, id string) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(kind)
	buf.WriteByte('/')
	buf.WriteString(id)
	return buf.Bytes()
}

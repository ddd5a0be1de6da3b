package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dublette-io/dublette/internal/matching"
)

// Sentinel errors for the configuration store.
var (
	// ErrConfigStoreFailed is returned when a configuration row cannot be
	// read or written. Fatal at run start: the run does not execute.
	ErrConfigStoreFailed = errors.New("matching configuration storage failed")

	// ErrCredentialMissing is returned when AI resolution is enabled but no
	// credential row exists.
	ErrCredentialMissing = errors.New("no llm credential stored")
)

// ConfigStore persists the versioned MatchingConfig singleton plus the
// encrypted LLM credential. The config is loaded once at the start of every
// run and treated as immutable for its duration; the credential is decrypted
// only when the resolver client is constructed and never leaves this
// package in sealed form.
type ConfigStore struct {
	conn      *Connection
	secretKey []byte
}

// NewConfigStore creates the configuration store. secretKey is the parsed
// 32-byte symmetric key (see ParseSecretKey); it may be nil when AI
// resolution is disabled and no credential access is needed.
func NewConfigStore(conn *Connection, secretKey []byte) (*ConfigStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &ConfigStore{conn: conn, secretKey: secretKey}, nil
}

// Load returns the persisted configuration, reporting false when no row
// exists yet (the caller falls back to the file-based config).
func (s *ConfigStore) Load(ctx context.Context) (*matching.MatchingConfig, bool, error) {
	var raw []byte

	err := s.conn.db.QueryRowContext(ctx,
		`SELECT config FROM matching_config WHERE id = 1`,
	).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: read singleton: %w", ErrConfigStoreFailed, err)
	}

	// Unknown keys in the stored document fall back to defaults, so a
	// config written by a newer deployment loads cleanly.
	cfg := matching.DefaultConfig()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, false, fmt.Errorf("%w: decode config: %w", ErrConfigStoreFailed, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrConfigStoreFailed, err)
	}

	return cfg, true, nil
}

// Save upserts the configuration singleton.
func (s *ConfigStore) Save(ctx context.Context, cfg *matching.MatchingConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigStoreFailed, err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: encode config: %w", ErrConfigStoreFailed, err)
	}

	_, err = s.conn.db.ExecContext(ctx, `
		INSERT INTO matching_config (id, config, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`,
		raw,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert singleton: %w", ErrConfigStoreFailed, err)
	}

	return nil
}

// SaveCredential seals the LLM API key and stores it on the singleton row,
// creating the row with the default configuration when none exists.
func (s *ConfigStore) SaveCredential(ctx context.Context, apiKey string) error {
	if len(s.secretKey) == 0 {
		return ErrSecretKeyInvalid
	}

	sealed, err := encryptCredential(s.secretKey, apiKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigStoreFailed, err)
	}

	raw, err := json.Marshal(matching.DefaultConfig())
	if err != nil {
		return fmt.Errorf("%w: encode default config: %w", ErrConfigStoreFailed, err)
	}

	_, err = s.conn.db.ExecContext(ctx, `
		INSERT INTO matching_config (id, config, llm_credential_enc, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET llm_credential_enc = EXCLUDED.llm_credential_enc, updated_at = NOW()`,
		raw, sealed,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert credential: %w", ErrConfigStoreFailed, err)
	}

	return nil
}

// LoadCredential returns the decrypted LLM API key.
func (s *ConfigStore) LoadCredential(ctx context.Context) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrSecretKeyInvalid
	}

	var sealed []byte

	err := s.conn.db.QueryRowContext(ctx,
		`SELECT llm_credential_enc FROM matching_config WHERE id = 1`,
	).Scan(&sealed)

	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(sealed) == 0) {
		return "", ErrCredentialMissing
	}

	if err != nil {
		return "", fmt.Errorf("%w: read credential: %w", ErrConfigStoreFailed, err)
	}

	apiKey, err := decryptCredential(s.secretKey, sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfigStoreFailed, err)
	}

	return apiKey, nil
}

package tokenstore

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/driftware/workspace-mcp/internal/errdefs"
	"github.com/driftware/workspace-mcp/internal/logging"
)

// ServiceName identifies this application in the OS keyring and in the
// file-encryption key derivation.
const ServiceName = "workspace-mcp"

// Store is the persistence surface consumed by the auth providers.
type Store interface {
	// Save validates and persists credentials for an account.
	Save(ctx context.Context, account string, creds *Credentials) error

	// Load returns the stored credentials, (nil, nil) when none exist,
	// or a CorruptionError when stored bytes are damaged.
	Load(ctx context.Context, account string) (*Credentials, error)

	// Delete removes stored credentials best-effort. It never fails.
	Delete(ctx context.Context, account string) error

	// Has reports whether any credentials are stored for the account.
	Has(ctx context.Context, account string) bool

	// Accounts lists accounts with stored credentials.
	Accounts(ctx context.Context) ([]string, error)
}

// Mode selects which backends a DualStore uses.
type Mode string

const (
	// ModeAuto prefers the OS keyring and degrades to file-only when
	// the keyring is unavailable.
	ModeAuto Mode = "auto"

	// ModeKeyring forces the OS keyring backend only.
	ModeKeyring Mode = "keyring"

	// ModeFile forces the encrypted-file backend only.
	ModeFile Mode = "file"
)

// CorruptionEvent is emitted once per detected corruption, for metrics
// and diagnostics.
type CorruptionEvent struct {
	Backend     string
	Kind        string
	Account     string
	BackupPath  string
	Recoverable bool
	Timestamp   time.Time
}

// EventSink receives corruption events. Implementations must not block.
type EventSink func(CorruptionEvent)

// OpSink receives the outcome of every backend operation, for metrics.
// Implementations must not block.
type OpSink func(ctx context.Context, operation, backend string, err error)

// DualStore composes the keyring and file backends per the configured
// mode. Reads and writes are not guarded against concurrent multi-process
// access; last writer wins.
type DualStore struct {
	keyring *KeyringStore
	file    *FileStore
	logger  *slog.Logger
	sink    EventSink
	opSink  OpSink
	clock   func() time.Time
}

// DualOption configures a DualStore.
type DualOption func(*DualStore)

// WithEventSink registers a corruption event receiver.
func WithEventSink(sink EventSink) DualOption {
	return func(s *DualStore) { s.sink = sink }
}

// WithOpSink registers a per-operation outcome receiver.
func WithOpSink(sink OpSink) DualOption {
	return func(s *DualStore) { s.opSink = sink }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) DualOption {
	return func(s *DualStore) { s.logger = l }
}

// WithNow substitutes the clock used for event timestamps, for tests.
func WithNow(now func() time.Time) DualOption {
	return func(s *DualStore) { s.clock = now }
}

// NewDualStore builds a store for the given mode. filePath empty means
// the default location under the user config directory. In ModeAuto an
// unavailable OS keyring degrades to file-only with a warning.
func NewDualStore(mode Mode, filePath string, opts ...DualOption) (*DualStore, error) {
	s := &DualStore{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch mode {
	case ModeKeyring:
		s.keyring = NewKeyringStore(ServiceName)
	case ModeFile:
		fs, err := NewFileStore(filePath)
		if err != nil {
			return nil, err
		}
		s.file = fs
	case ModeAuto, "":
		fs, err := NewFileStore(filePath)
		if err != nil {
			return nil, err
		}
		s.file = fs
		kr := NewKeyringStore(ServiceName)
		if kr.Available() {
			s.keyring = kr
		} else {
			s.logger.Warn("OS keyring unavailable, using encrypted file storage only",
				logging.Backend(errdefs.BackendFile))
		}
	default:
		return nil, errors.New("unknown token store mode: " + string(mode))
	}

	if s.keyring != nil {
		s.keyring.onCorruption = s.emit
	}
	if s.file != nil {
		s.file.onCorruption = s.emit
	}
	return s, nil
}

func (s *DualStore) emit(ev CorruptionEvent) {
	ev.Timestamp = s.clock()
	s.logger.Error("stored credentials corrupted",
		logging.Backend(ev.Backend),
		slog.String("kind", ev.Kind),
		logging.Account(ev.Account),
		slog.String("backup_path", ev.BackupPath),
		slog.Bool("recoverable", ev.Recoverable))
	if s.sink != nil {
		s.sink(ev)
	}
}

func (s *DualStore) record(ctx context.Context, operation, backend string, err error) {
	if s.opSink != nil {
		s.opSink(ctx, operation, backend, err)
	}
}

// Save validates the credentials, writes to the keyring first, and falls
// back to the encrypted file. When both backends fail the returned error
// carries both causes.
func (s *DualStore) Save(ctx context.Context, account string, creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return errors.New("refusing to persist invalid credentials: " + err.Error())
	}

	var keyringErr error
	if s.keyring != nil {
		keyringErr = s.keyring.Save(ctx, account, creds)
		s.record(ctx, "save", errdefs.BackendKeyring, keyringErr)
		if keyringErr == nil {
			return nil
		}
		s.logger.Warn("keyring write failed, falling back to file storage",
			logging.Account(account), logging.Err(keyringErr))
	}

	if s.file != nil {
		err := s.file.Save(ctx, account, creds)
		s.record(ctx, "save", errdefs.BackendFile, err)
		if err != nil {
			return errors.Join(keyringErr, err)
		}
		return nil
	}

	return keyringErr
}

// Load prefers the keyring. A keyring corruption error is surfaced even
// when the file backend holds valid credentials; the file is probed only
// to report recoverability. A clean keyring miss or a non-corruption
// keyring failure falls through to the file backend.
func (s *DualStore) Load(ctx context.Context, account string) (*Credentials, error) {
	if s.keyring != nil {
		creds, err := s.keyring.Load(ctx, account)
		s.record(ctx, "load", errdefs.BackendKeyring, err)
		if err == nil && creds != nil {
			return creds, nil
		}

		var cerr *errdefs.CorruptionError
		if errors.As(err, &cerr) {
			if s.file != nil {
				if fc, ferr := s.file.Load(ctx, account); ferr == nil && fc != nil {
					cerr.Recoverable = true
				}
			}
			return nil, cerr
		}
		if err != nil {
			s.logger.Warn("keyring read failed, trying file storage",
				logging.Account(account), logging.Err(err))
		}
	}

	if s.file != nil {
		creds, err := s.file.Load(ctx, account)
		s.record(ctx, "load", errdefs.BackendFile, err)
		return creds, err
	}
	return nil, nil
}

// Delete removes credentials from every backend best-effort.
func (s *DualStore) Delete(ctx context.Context, account string) error {
	if s.keyring != nil {
		err := s.keyring.Delete(ctx, account)
		s.record(ctx, "delete", errdefs.BackendKeyring, err)
		if err != nil {
			s.logger.Debug("keyring delete failed", logging.Account(account), logging.Err(err))
		}
	}
	if s.file != nil {
		err := s.file.Delete(ctx, account)
		s.record(ctx, "delete", errdefs.BackendFile, err)
		if err != nil {
			s.logger.Debug("file delete failed", logging.Account(account), logging.Err(err))
		}
	}
	return nil
}

// Has reports whether any backend holds an entry for the account.
func (s *DualStore) Has(ctx context.Context, account string) bool {
	if s.keyring != nil && s.keyring.Has(ctx, account) {
		return true
	}
	return s.file != nil && s.file.Has(ctx, account)
}

// Accounts returns the union of accounts across backends, sorted.
func (s *DualStore) Accounts(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	if s.keyring != nil {
		accounts, err := s.keyring.Accounts(ctx)
		if err == nil {
			for _, a := range accounts {
				seen[a] = true
			}
		}
	}
	if s.file != nil {
		accounts, err := s.file.Accounts(ctx)
		if err == nil {
			for _, a := range accounts {
				seen[a] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

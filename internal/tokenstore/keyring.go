package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zalando/go-keyring"

	"github.com/driftware/workspace-mcp/internal/errdefs"
)

// accountsIndexKey is the keyring user under which the account index is
// kept. The OS keyring has no enumeration API, so membership is tracked
// explicitly.
const accountsIndexKey = "__accounts__"

// KeyringStore persists credentials in the OS-native credential manager.
type KeyringStore struct {
	service      string
	onCorruption func(CorruptionEvent)
}

// NewKeyringStore builds a keyring backend under the given service name.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// Available probes the OS keyring. A clean not-found from the probe key
// means the keyring answers; any other error means it does not.
func (s *KeyringStore) Available() bool {
	_, err := keyring.Get(s.service, "availability-probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

func (s *KeyringStore) Save(_ context.Context, account string, creds *Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	defer zeroBytes(data)
	if err := keyring.Set(s.service, account, string(data)); err != nil {
		return fmt.Errorf("keyring write: %w", err)
	}
	s.indexAdd(account)
	return nil
}

// Load returns (nil, nil) on a clean miss. Unparseable or structurally
// invalid entries are deleted, reported, and surfaced as corruption; the
// keyring offers no quarantine mechanism, so deletion is the only option.
func (s *KeyringStore) Load(_ context.Context, account string) (*Credentials, error) {
	raw, err := keyring.Get(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring read: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, s.corrupted(account, errdefs.CorruptionJSON, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, s.corrupted(account, errdefs.CorruptionStructure, err)
	}
	return &creds, nil
}

func (s *KeyringStore) corrupted(account, kind string, cause error) error {
	_ = keyring.Delete(s.service, account)
	s.indexRemove(account)

	if s.onCorruption != nil {
		s.onCorruption(CorruptionEvent{
			Backend: errdefs.BackendKeyring,
			Kind:    kind,
			Account: account,
		})
	}
	return &errdefs.CorruptionError{
		Backend: errdefs.BackendKeyring,
		Kind:    kind,
		Cause:   cause,
	}
}

func (s *KeyringStore) Delete(_ context.Context, account string) error {
	err := keyring.Delete(s.service, account)
	s.indexRemove(account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

func (s *KeyringStore) Has(_ context.Context, account string) bool {
	_, err := keyring.Get(s.service, account)
	return err == nil
}

func (s *KeyringStore) Accounts(_ context.Context) ([]string, error) {
	return s.indexLoad(), nil
}

func (s *KeyringStore) indexLoad() []string {
	raw, err := keyring.Get(s.service, accountsIndexKey)
	if err != nil {
		return nil
	}
	var accounts []string
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil
	}
	return accounts
}

func (s *KeyringStore) indexSave(accounts []string) {
	sort.Strings(accounts)
	data, err := json.Marshal(accounts)
	if err != nil {
		return
	}
	_ = keyring.Set(s.service, accountsIndexKey, string(data))
}

func (s *KeyringStore) indexAdd(account string) {
	accounts := s.indexLoad()
	for _, a := range accounts {
		if a == account {
			return
		}
	}
	s.indexSave(append(accounts, account))
}

func (s *KeyringStore) indexRemove(account string) {
	accounts := s.indexLoad()
	out := accounts[:0]
	for _, a := range accounts {
		if a != account {
			out = append(out, a)
		}
	}
	s.indexSave(out)
}

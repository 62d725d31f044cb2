package tokenstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/driftware/workspace-mcp/internal/errdefs"
)

const (
	// DefaultFileName is the encrypted credential file under the app's
	// config directory.
	DefaultFileName = "oauth2-tokens.enc"

	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore persists credentials as hex-encoded AES-256-GCM ciphertext of
// a JSON account map. The key is derived from machine and service
// identity, so this is at-rest obfuscation against casual reads, not a
// security boundary against a local attacker with filesystem access.
type FileStore struct {
	path string
	key  []byte

	mu           sync.Mutex
	onCorruption func(CorruptionEvent)
	now          func() time.Time
}

// NewFileStore builds a file backend at path, or at the default location
// under the user config directory when path is empty.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config directory: %w", err)
		}
		path = filepath.Join(configDir, ServiceName, DefaultFileName)
	}
	return &FileStore{
		path: path,
		key:  deriveKey(),
		now:  time.Now,
	}, nil
}

// Path returns the credential file location.
func (s *FileStore) Path() string { return s.path }

// deriveKey produces the static AES-256 key from hostname, service name
// and OS username. Deterministic on a given machine.
func deriveKey() []byte {
	hostname, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	sum := sha256.Sum256([]byte(hostname + ServiceName + username))
	return sum[:]
}

func (s *FileStore) Save(_ context.Context, account string, creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		// Corrupted file was already quarantined; start a fresh map so
		// the new credentials are not lost.
		all = make(map[string]*Credentials)
	}
	all[account] = creds

	return s.writeAll(all)
}

func (s *FileStore) Load(_ context.Context, account string) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	creds, ok := all[account]
	if !ok {
		return nil, nil
	}
	if err := creds.Validate(); err != nil {
		return nil, s.corrupted(account, errdefs.CorruptionStructure, err)
	}
	return creds, nil
}

func (s *FileStore) Delete(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil || len(all) == 0 {
		return nil
	}
	if _, ok := all[account]; !ok {
		return nil
	}
	delete(all, account)
	if len(all) == 0 {
		return os.Remove(s.path)
	}
	return s.writeAll(all)
}

func (s *FileStore) Has(_ context.Context, account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return false
	}
	_, ok := all[account]
	return ok
}

func (s *FileStore) Accounts(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(all))
	for a := range all {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	return accounts, nil
}

// readAll decrypts and parses the credential file. A missing or
// unreadable file is a clean miss; undecryptable or unparseable content
// is corruption and quarantines the file before returning.
func (s *FileStore) readAll() (map[string]*Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return make(map[string]*Credentials), nil
	}

	ciphertext, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, s.corrupted("", errdefs.CorruptionEncryption, err)
	}

	plaintext, err := s.decrypt(ciphertext)
	if err != nil {
		return nil, s.corrupted("", errdefs.CorruptionEncryption, err)
	}
	defer zeroBytes(plaintext)

	var all map[string]*Credentials
	if err := json.Unmarshal(plaintext, &all); err != nil {
		return nil, s.corrupted("", errdefs.CorruptionJSON, err)
	}
	if all == nil {
		all = make(map[string]*Credentials)
	}
	return all, nil
}

func (s *FileStore) writeAll(all map[string]*Credentials) error {
	plaintext, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	defer zeroBytes(plaintext)

	ciphertext, err := s.encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(hex.EncodeToString(ciphertext)), fileMode); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

func (s *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *FileStore) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

// corrupted quarantines the file by renaming it to a timestamped sibling,
// preserving it for forensics, then reports and returns the typed error.
func (s *FileStore) corrupted(account, kind string, cause error) error {
	backup := fmt.Sprintf("%s.corrupted-%d", s.path, s.now().UnixMilli())
	if err := os.Rename(s.path, backup); err != nil {
		backup = ""
	}

	if s.onCorruption != nil {
		s.onCorruption(CorruptionEvent{
			Backend:    errdefs.BackendFile,
			Kind:       kind,
			Account:    account,
			BackupPath: backup,
		})
	}
	return &errdefs.CorruptionError{
		Backend:    errdefs.BackendFile,
		Kind:       kind,
		Path:       s.path,
		BackupPath: backup,
		Cause:      cause,
	}
}

// zeroBytes wipes sensitive plaintext after use.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

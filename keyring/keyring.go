// Package keyring provides secure storage for endpoint passwords.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/hkdf"

	"github.com/yllada/trusttunnel-desktop/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "trusttunnel-desktop"
	probeKey    = "trusttunnel-desktop-probe"
	keyInfo     = "trusttunnel-desktop credentials v1"
)

// Account returns the keyring account for an endpoint login.
func Account(username, hostname string) string {
	return username + "@" + hostname
}

// Options configures a Keyring.
type Options struct {
	// ForceLocal skips the system keyring.
	ForceLocal bool
	// LocalFile is the encrypted fallback file. Empty uses the config dir.
	LocalFile string
}

// Keyring stores passwords in the system keyring or the local fallback file.
type Keyring struct {
	mu        sync.Mutex
	useLocal  bool
	localFile string
	key       []byte
	local     map[string]string
}

var (
	defaultKeyring *Keyring
	defaultOnce    sync.Once
)

// Default returns the process-wide keyring.
func Default() *Keyring {
	defaultOnce.Do(func() {
		defaultKeyring = New(Options{})
	})
	return defaultKeyring
}

// New creates a keyring. Unless ForceLocal is set, it probes the system
// keyring and falls back to the local file when the probe fails.
func New(opts Options) *Keyring {
	k := &Keyring{localFile: opts.LocalFile}
	if opts.ForceLocal || !systemKeyringAvailable() {
		k.switchToLocal()
	}
	return k
}

func systemKeyringAvailable() bool {
	if err := keyring.Set(serviceName, probeKey, "probe"); err != nil {
		common.LogDebug("System keyring unavailable: %v", err)
		return false
	}
	_ = keyring.Delete(serviceName, probeKey)
	return true
}

// switchToLocal enables the encrypted file backend. Callers hold mu or
// are constructing k.
func (k *Keyring) switchToLocal() {
	if k.useLocal {
		return
	}
	k.useLocal = true
	if k.localFile == "" {
		dir, err := common.GetConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		k.localFile = filepath.Join(dir, common.CredentialsFileName)
	}
	k.key = deriveKey()
	k.local = make(map[string]string)
	k.loadLocal()
}

// deriveKey derives the file encryption key from machine-specific data.
func deriveKey() []byte {
	hostname, _ := os.Hostname()
	salt := []byte(hostname + "/" + strconv.Itoa(os.Getuid()))
	r := hkdf.New(sha256.New, []byte(machineID()), salt, []byte(keyInfo))

	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF-SHA256 can produce far more than 32 bytes.
		panic(err)
	}
	return key
}

func machineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return "default-machine-id"
}

func (k *Keyring) loadLocal() {
	data, err := os.ReadFile(k.localFile)
	if err != nil {
		return
	}
	decrypted, err := k.decrypt(data)
	if err != nil {
		common.LogWarn("Ignoring unreadable credentials file %s: %v", k.localFile, err)
		return
	}
	if err := json.Unmarshal(decrypted, &k.local); err != nil {
		common.LogWarn("Ignoring malformed credentials file %s: %v", k.localFile, err)
	}
}

func (k *Keyring) saveLocal() error {
	data, err := json.Marshal(k.local)
	if err != nil {
		return err
	}
	encrypted, err := k.encrypt(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(k.localFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(k.localFile, encrypted, 0600)
}

func (k *Keyring) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := k.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func (k *Keyring) decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	gcm, err := k.gcm()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (k *Keyring) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Store saves the password for account.
func (k *Keyring) Store(account, password string) error {
	if account == "" {
		return errors.New("account cannot be empty")
	}
	if password == "" {
		return errors.New("password cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.useLocal {
		err := keyring.Set(serviceName, account, password)
		if err == nil {
			return nil
		}
		common.LogWarn("System keyring write failed, using local storage: %v", err)
		k.switchToLocal()
	}

	k.local[account] = password
	return k.saveLocal()
}

// Get returns the password for account, or common.ErrCredentialsNotFound.
func (k *Keyring) Get(account string) (string, error) {
	if account == "" {
		return "", errors.New("account cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.useLocal {
		password, err := keyring.Get(serviceName, account)
		if err == nil {
			return password, nil
		}
		if !errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring read failed: %w", err)
		}
		return "", common.ErrCredentialsNotFound
	}

	password, ok := k.local[account]
	if !ok {
		return "", common.ErrCredentialsNotFound
	}
	return password, nil
}

// Delete removes the password for account. Deleting a missing entry is not
// an error.
func (k *Keyring) Delete(account string) error {
	if account == "" {
		return errors.New("account cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.useLocal {
		err := keyring.Delete(serviceName, account)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}

	if _, ok := k.local[account]; !ok {
		return nil
	}
	delete(k.local, account)
	return k.saveLocal()
}

// Exists reports whether a password is stored for account.
func (k *Keyring) Exists(account string) bool {
	_, err := k.Get(account)
	return err == nil
}

var _ common.CredentialStore = (*Keyring)(nil)

package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"magictunnel/pkg/mcperrors"
)

// FilesystemBackend persists tokens as individually encrypted files under a
// storage directory, grounded on internal/agent/oauth's TokenStore layout
// (0700 directory, 0600 files, one JSON document per credential) but adding
// secretbox encryption at rest so the invariant in SPEC_FULL.md §3 ("never
// serialized in plaintext unless the backend is explicitly the in-memory
// one") actually holds for the on-disk backend.
type FilesystemBackend struct {
	mu  sync.Mutex
	dir string
	key [32]byte
}

const keyFileName = ".key"

// NewFilesystemBackend opens (creating if needed) an encrypted token store
// rooted at dir. The encryption key is generated on first use and persisted
// alongside the tokens with 0600 permissions; losing it invalidates every
// stored token, which is the expected failure mode for a lost local key.
func NewFilesystemBackend(dir string) (*FilesystemBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, mcperrors.Wrap(mcperrors.Internal, err, "creating session storage directory")
	}

	b := &FilesystemBackend{dir: dir}
	if err := b.loadOrCreateKey(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FilesystemBackend) loadOrCreateKey() error {
	path := filepath.Join(b.dir, keyFileName)
	raw, err := os.ReadFile(path)
	if err == nil {
		decoded, decErr := hex.DecodeString(string(raw))
		if decErr != nil || len(decoded) != 32 {
			return mcperrors.New(mcperrors.Internal, "session key file is corrupt")
		}
		copy(b.key[:], decoded)
		return nil
	}
	if !os.IsNotExist(err) {
		return mcperrors.Wrap(mcperrors.Internal, err, "reading session key file")
	}

	if _, err := rand.Read(b.key[:]); err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "generating session key")
	}
	encoded := hex.EncodeToString(b.key[:])
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "writing session key file")
	}
	return nil
}

func (b *FilesystemBackend) pathFor(userID, provider string) string {
	name := fmt.Sprintf("%s__%s.token", sanitize(userID), sanitize(provider))
	return filepath.Join(b.dir, name)
}

// sanitize strips path separators from identifiers used to build filenames.
// Token content itself is untouched; this only prevents a crafted user id
// or provider name from escaping the storage directory.
func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == filepath.Separator || r == '/' || r == '\\' || r == 0 {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

func (b *FilesystemBackend) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

func (b *FilesystemBackend) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &b.key)
	if !ok {
		return nil, fmt.Errorf("decryption failed (wrong key or corrupt file)")
	}
	return plaintext, nil
}

func (b *FilesystemBackend) Get(userID, provider string) (Token, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.pathFor(userID, provider))
	if os.IsNotExist(err) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, mcperrors.Wrap(mcperrors.Internal, err, "reading session token file")
	}

	plaintext, err := b.decrypt(raw)
	if err != nil {
		return Token{}, false, mcperrors.Wrap(mcperrors.Internal, err, "decrypting session token")
	}
	var t Token
	if err := json.Unmarshal(plaintext, &t); err != nil {
		return Token{}, false, mcperrors.Wrap(mcperrors.Internal, err, "parsing session token")
	}
	return t, true, nil
}

func (b *FilesystemBackend) Put(token Token) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	plaintext, err := json.Marshal(token)
	if err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "marshaling session token")
	}
	ciphertext, err := b.encrypt(plaintext)
	if err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "encrypting session token")
	}
	path := b.pathFor(token.UserID, token.Provider)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, ciphertext, 0o600); err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "writing session token file")
	}
	return os.Rename(tmp, path)
}

func (b *FilesystemBackend) Delete(userID, provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := os.Remove(b.pathFor(userID, provider))
	if err != nil && !os.IsNotExist(err) {
		return mcperrors.Wrap(mcperrors.Internal, err, "deleting session token file")
	}
	return nil
}

func (b *FilesystemBackend) List() ([]Key, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.Internal, err, "listing session storage directory")
	}
	var keys []Key
	for _, e := range entries {
		name := e.Name()
		if name == keyFileName || filepath.Ext(name) != ".token" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.dir, name))
		if err != nil {
			continue
		}
		plaintext, err := b.decrypt(raw)
		if err != nil {
			continue
		}
		var t Token
		if err := json.Unmarshal(plaintext, &t); err != nil {
			continue
		}
		keys = append(keys, t.key())
	}
	return keys, nil
}

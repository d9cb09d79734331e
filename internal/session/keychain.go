package session

import "magictunnel/pkg/mcperrors"

// KeychainBackend is a deliberate stub. Open Question #4 (SPEC_FULL.md):
// no example repo in the retrieved pack imports an OS-keychain binding
// (e.g. zalando/go-keyring, keybase/go-keychain), and fabricating one would
// violate the "never fabricate dependencies" rule. Every method returns a
// clear mcperrors.Internal rather than silently falling back to another
// backend, so a misconfigured deployment fails loudly at first use instead
// of unknowingly persisting tokens somewhere weaker than requested.
type KeychainBackend struct{}

// NewKeychainBackend returns the stub backend.
func NewKeychainBackend() *KeychainBackend { return &KeychainBackend{} }

var errNoKeychain = mcperrors.New(mcperrors.Internal,
	"OS keychain session backend is not implemented: no keychain-binding library is available in this build; configure the memory, filesystem, or redis backend instead")

func (KeychainBackend) Get(userID, provider string) (Token, bool, error) { return Token{}, false, errNoKeychain }
func (KeychainBackend) Put(token Token) error                            { return errNoKeychain }
func (KeychainBackend) Delete(userID, provider string) error             { return errNoKeychain }
func (KeychainBackend) List() ([]Key, error)                             { return nil, errNoKeychain }

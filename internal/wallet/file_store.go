package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"aegis-id/go-agent/internal/crypto"
	"aegis-id/go-agent/internal/securestore"
)

// FileStore persists records to a single encrypted file. Mutations rewrite
// the file through a temp file and rename, so a crash mid-write leaves the
// previous state intact.
type FileStore struct {
	mu     sync.Mutex
	path   string
	secret string
}

type persistedMyRecord struct {
	Did        string `json:"did"`
	Verkey     []byte `json:"verkey"`
	CryptoType string `json:"crypto_type"`
	SigningPub []byte `json:"signing_pub"`
	SigningKey []byte `json:"signing_key"`
}

type persistedTheirRecord struct {
	Did        string `json:"did"`
	Verkey     []byte `json:"verkey"`
	CryptoType string `json:"crypto_type,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
}

type persistedState struct {
	Mine   map[string]persistedMyRecord    `json:"mine"`
	Theirs map[string]persistedTheirRecord `json:"theirs"`
}

func NewFileStore(path, secret string) *FileStore {
	return &FileStore{path: path, secret: secret}
}

func (s *FileStore) CreateMyIdentity(h Handle, rec MyIdentity, signing crypto.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	key := recordKey(h, rec.Did)
	if _, exists := state.Mine[key]; exists {
		return ErrAlreadyExists
	}
	state.Mine[key] = persistedMyRecord{
		Did:        rec.Did,
		Verkey:     append([]byte(nil), rec.Verkey...),
		CryptoType: rec.CryptoType,
		SigningPub: append([]byte(nil), signing.Public...),
		SigningKey: append([]byte(nil), signing.Private...),
	}
	return s.writeLocked(state)
}

func (s *FileStore) GetMyIdentity(h Handle, did string) (MyIdentity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked()
	if err != nil {
		return MyIdentity{}, false, err
	}
	record, ok := state.Mine[recordKey(h, did)]
	if !ok {
		return MyIdentity{}, false, nil
	}
	return MyIdentity{
		Did:        record.Did,
		Verkey:     append([]byte(nil), record.Verkey...),
		CryptoType: record.CryptoType,
	}, true, nil
}

func (s *FileStore) ReplaceMyKeys(h Handle, did, cryptoType string, signing crypto.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	key := recordKey(h, did)
	record, ok := state.Mine[key]
	if !ok {
		return ErrNotFound
	}
	record.CryptoType = cryptoType
	record.Verkey = append([]byte(nil), signing.Public...)
	record.SigningPub = append([]byte(nil), signing.Public...)
	record.SigningKey = append([]byte(nil), signing.Private...)
	state.Mine[key] = record
	return s.writeLocked(state)
}

func (s *FileStore) WithSigningKey(h Handle, did string, fn func(signing crypto.KeyPair) error) error {
	s.mu.Lock()
	state, err := s.loadLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	record, ok := state.Mine[recordKey(h, did)]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	signing := crypto.KeyPair{
		Public:  append([]byte(nil), record.SigningPub...),
		Private: append([]byte(nil), record.SigningKey...),
	}
	defer zeroKeyPair(signing)
	return fn(signing)
}

func (s *FileStore) PutTheirIdentity(h Handle, rec TheirIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	state.Theirs[recordKey(h, rec.Did)] = persistedTheirRecord{
		Did:        rec.Did,
		Verkey:     append([]byte(nil), rec.Verkey...),
		CryptoType: rec.CryptoType,
		Endpoint:   rec.Endpoint,
	}
	return s.writeLocked(state)
}

func (s *FileStore) GetTheirIdentity(h Handle, did string) (TheirIdentity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked()
	if err != nil {
		return TheirIdentity{}, false, err
	}
	record, ok := state.Theirs[recordKey(h, did)]
	if !ok {
		return TheirIdentity{}, false, nil
	}
	return TheirIdentity{
		Did:        record.Did,
		Verkey:     append([]byte(nil), record.Verkey...),
		CryptoType: record.CryptoType,
		Endpoint:   record.Endpoint,
	}, true, nil
}

func (s *FileStore) loadLocked() (*persistedState, error) {
	state := &persistedState{
		Mine:   make(map[string]persistedMyRecord),
		Theirs: make(map[string]persistedTheirRecord),
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return state, nil
	}
	plain, err := securestore.Decrypt(s.secret, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(plain, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if state.Mine == nil {
		state.Mine = make(map[string]persistedMyRecord)
	}
	if state.Theirs == nil {
		state.Theirs = make(map[string]persistedTheirRecord)
	}
	return state, nil
}

func (s *FileStore) writeLocked(state *persistedState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	encrypted, err := securestore.Encrypt(s.secret, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func recordKey(h Handle, did string) string {
	return fmt.Sprintf("%d/%s", h, did)
}

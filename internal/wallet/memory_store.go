package wallet

import (
	"sync"

	"aegis-id/go-agent/internal/crypto"
)

type myRecord struct {
	info    MyIdentity
	signing crypto.KeyPair
}

// MemoryStore keeps records in process memory. It is internally locked so a
// pool-based executor stays a safe extension point.
type MemoryStore struct {
	mu     sync.RWMutex
	mine   map[Handle]map[string]myRecord
	theirs map[Handle]map[string]TheirIdentity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mine:   make(map[Handle]map[string]myRecord),
		theirs: make(map[Handle]map[string]TheirIdentity),
	}
}

func (s *MemoryStore) CreateMyIdentity(h Handle, rec MyIdentity, signing crypto.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.mine[h]
	if !ok {
		records = make(map[string]myRecord)
		s.mine[h] = records
	}
	if _, exists := records[rec.Did]; exists {
		return ErrAlreadyExists
	}
	records[rec.Did] = myRecord{info: copyMyIdentity(rec), signing: copyKeyPair(signing)}
	return nil
}

func (s *MemoryStore) GetMyIdentity(h Handle, did string) (MyIdentity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.mine[h][did]
	if !ok {
		return MyIdentity{}, false, nil
	}
	return copyMyIdentity(record.info), true, nil
}

func (s *MemoryStore) ReplaceMyKeys(h Handle, did, cryptoType string, signing crypto.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.mine[h][did]
	if !ok {
		return ErrNotFound
	}
	record.info.Verkey = append([]byte(nil), signing.Public...)
	record.info.CryptoType = cryptoType
	record.signing = copyKeyPair(signing)
	s.mine[h][did] = record
	return nil
}

func (s *MemoryStore) WithSigningKey(h Handle, did string, fn func(signing crypto.KeyPair) error) error {
	s.mu.RLock()
	record, ok := s.mine[h][did]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	signing := copyKeyPair(record.signing)
	defer zeroKeyPair(signing)
	return fn(signing)
}

func (s *MemoryStore) PutTheirIdentity(h Handle, rec TheirIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.theirs[h]
	if !ok {
		records = make(map[string]TheirIdentity)
		s.theirs[h] = records
	}
	records[rec.Did] = copyTheirIdentity(rec)
	return nil
}

func (s *MemoryStore) GetTheirIdentity(h Handle, did string) (TheirIdentity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.theirs[h][did]
	if !ok {
		return TheirIdentity{}, false, nil
	}
	return copyTheirIdentity(record), true, nil
}

func zeroKeyPair(kp crypto.KeyPair) {
	for i := range kp.Private {
		kp.Private[i] = 0
	}
}

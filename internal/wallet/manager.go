// Package wallet is the lifecycle manager over the encrypted multi-wallet
// index: create/import/archive/restore/switch/delete, activity-gated
// sub-wallet creation, and the auxiliary lock-state and biometric-PIN slots.
//
// Every operation is a full load-modify-save cycle against the one persisted
// blob, serialized by a single mutex. The manager is the single writer the
// storage model requires; reads take the same mutex because a load can
// trigger a migration re-save.
package wallet

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/time/rate"

	"wallet-keystore/internal/crypto"
	"wallet-keystore/internal/storage"
	"wallet-keystore/internal/walletdb"
)

// MaxMasterKeys caps master keys per installation. Sub-wallet capacity is
// walletdb's concern.
const MaxMasterKeys = 10

// minPINLen rejects obviously weak PINs before any crypto work.
const minPINLen = 4

type Config struct {
	// Store is required. Production binds an OS-backed secure store.
	Store storage.SecretStore

	// Session receives derived mnemonics on switch. Optional; without it
	// switches only move the persisted selection.
	Session LightningSession

	// Biometric gates cached-PIN retrieval. Optional.
	Biometric BiometricPrompt

	// UseLegacyFormat makes new encryptions use the v1 XOR scheme, for
	// devices without a usable AES-GCM cipher. Decryption is unaffected;
	// it always follows the payload's own version tag.
	UseLegacyFormat bool

	Clock  clock.Clock
	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = clock.NewDefaultClock()
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stdout, "[wallet] ", log.LstdFlags)
	}
}

type Manager struct {
	mu sync.Mutex

	store      storage.SecretStore
	session    LightningSession
	biometric  BiometricPrompt
	clk        clock.Clock
	log        *log.Logger
	pins       *pinLimiter
	encVersion int
}

func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("wallet: Config.Store is required")
	}
	cfg.setDefaults()
	encVersion := crypto.VersionRandomSalt
	if cfg.UseLegacyFormat {
		encVersion = crypto.VersionXOR
	}
	return &Manager{
		store:      cfg.Store,
		session:    cfg.Session,
		biometric:  cfg.Biometric,
		clk:        cfg.Clock,
		log:        cfg.Logger,
		pins:       newPINLimiter(rate.Every(3*time.Second), 5, 10*time.Minute),
		encVersion: encVersion,
	}, nil
}

func (m *Manager) now() time.Time { return m.clk.Now() }

// load reads the index through walletdb, which migrates and re-saves if
// needed. Callers hold m.mu.
func (m *Manager) load(ctx context.Context) (*walletdb.MultiWalletStorage, error) {
	s, err := walletdb.Load(ctx, m.store, m.now())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// loadOrInit is load, but an absent blob yields fresh empty storage.
func (m *Manager) loadOrInit(ctx context.Context) (*walletdb.MultiWalletStorage, error) {
	s, err := m.load(ctx)
	if errors.Is(err, walletdb.ErrNoWallet) {
		return &walletdb.MultiWalletStorage{Version: walletdb.SchemaVersion}, nil
	}
	return s, err
}

func (m *Manager) save(ctx context.Context, s *walletdb.MultiWalletStorage) error {
	return walletdb.Save(ctx, m.store, s)
}

// WalletExists is the fast no-deserialization check against the schema
// stamp.
func (m *Manager) WalletExists(ctx context.Context) (bool, error) {
	return walletdb.Exists(ctx, m.store)
}

// ActiveWalletInfo is a read-only view of the current selection.
type ActiveWalletInfo struct {
	MasterKeyID       string
	MasterKeyNickname string
	SubWalletIndex    int
	SubWalletNickname string
	SubWalletCount    int
	ArchivedCount     int
	CanAddSubWallet   bool
}

// GetActiveWalletInfo returns the active selection view, or nil when no
// wallet exists or none is selected.
func (m *Manager) GetActiveWalletInfo(ctx context.Context) (*ActiveWalletInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if errors.Is(err, walletdb.ErrNoWallet) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.ActiveMasterKeyID == "" {
		return nil, nil
	}
	mk := s.FindMasterKey(s.ActiveMasterKeyID)
	if mk == nil {
		return nil, ErrMasterKeyNotFound
	}
	sw := mk.ActiveSubWallet(s.ActiveSubWalletIndex)
	if sw == nil {
		return nil, ErrSubWalletNotFound
	}
	return &ActiveWalletInfo{
		MasterKeyID:       mk.ID,
		MasterKeyNickname: mk.Nickname,
		SubWalletIndex:    sw.Index,
		SubWalletNickname: sw.Nickname,
		SubWalletCount:    len(mk.SubWallets),
		ArchivedCount:     len(mk.ArchivedSubWallets),
		CanAddSubWallet:   mk.CanAddSubWallet(),
	}, nil
}

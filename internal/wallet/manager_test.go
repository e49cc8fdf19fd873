package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"wallet-keystore/internal/crypto"
	"wallet-keystore/internal/mnemonic"
	"wallet-keystore/internal/storage"
	"wallet-keystore/internal/walletdb"
)

const (
	testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPIN    = "123456"
)

type fakeSession struct {
	calls          []string
	connected      string
	failConnect    error
	failDisconnect error
}

func (f *fakeSession) Connect(_ context.Context, mnemonic string) error {
	f.calls = append(f.calls, "connect")
	if f.failConnect != nil {
		return f.failConnect
	}
	f.connected = mnemonic
	return nil
}

func (f *fakeSession) Disconnect(context.Context) error {
	f.calls = append(f.calls, "disconnect")
	return f.failDisconnect
}

type fakeBiometric struct {
	confirm bool
	asked   int
}

func (f *fakeBiometric) Confirm(context.Context, string) (bool, error) {
	f.asked++
	return f.confirm, nil
}

func newTestManager(t *testing.T, session LightningSession, bio BiometricPrompt) *Manager {
	t.Helper()
	m, err := New(Config{
		Store:     storage.NewFileSecretStore(t.TempDir()),
		Session:   session,
		Biometric: bio,
		Clock:     clock.NewTestClock(time.Unix(1_700_000_000, 0)),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

// recordActivity marks the last active sub-wallet of a master key active so
// the next AddSubWallet passes the gate.
func recordActivity(t *testing.T, m *Manager, id string, index int) {
	t.Helper()
	if err := m.RecordSubWalletActivity(context.Background(), id, index, true, false); err != nil {
		t.Fatalf("record activity %d: %v", index, err)
	}
}

func TestCreateMasterKey(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)

	exists, err := m.WalletExists(ctx)
	if err != nil || exists {
		t.Fatalf("wallet exists before create: %v %v", exists, err)
	}

	id, err := m.CreateMasterKey(ctx, testPIN, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exists, err = m.WalletExists(ctx)
	if err != nil || !exists {
		t.Fatalf("wallet exists after create: %v %v", exists, err)
	}

	info, err := m.GetActiveWalletInfo(ctx)
	if err != nil {
		t.Fatalf("active info: %v", err)
	}
	if info == nil || info.MasterKeyID != id {
		t.Fatalf("active info = %+v", info)
	}
	if info.SubWalletIndex != 0 || info.SubWalletNickname != "Main Wallet" {
		t.Fatalf("main sub-wallet = %+v", info)
	}
	if info.MasterKeyNickname != "Wallet 1" {
		t.Fatalf("nickname = %q", info.MasterKeyNickname)
	}

	// A fresh key has no activity, so the gate is closed.
	if info.CanAddSubWallet {
		t.Fatal("fresh master key reports CanAddSubWallet")
	}
}

func TestImportScenario(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)

	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	got, err := m.GetMnemonic(ctx, id, testPIN)
	if err != nil {
		t.Fatalf("get mnemonic: %v", err)
	}
	if got != testPhrase {
		t.Fatalf("mnemonic = %q", got)
	}

	if _, err := m.GetMnemonic(ctx, id, "000000"); !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Fatalf("wrong PIN: want ErrDecryptionFailed, got %v", err)
	}
}

func TestImportRejectsInvalidMnemonic(t *testing.T) {
	m := newTestManager(t, nil, nil)
	if _, err := m.ImportMasterKey(context.Background(), "not a seed phrase", testPIN, ""); !errors.Is(err, mnemonic.ErrInvalidMnemonic) {
		t.Fatalf("want ErrInvalidMnemonic, got %v", err)
	}
}

func TestCreateRejectsShortPIN(t *testing.T) {
	m := newTestManager(t, nil, nil)
	if _, err := m.CreateMasterKey(context.Background(), "12", ""); !errors.Is(err, ErrPINTooShort) {
		t.Fatalf("want ErrPINTooShort, got %v", err)
	}
}

func TestAddSubWalletGating(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	// No activity recorded: gate closed.
	if _, err := m.AddSubWallet(ctx, id, "", nil); !errors.Is(err, ErrSubWalletInactive) {
		t.Fatalf("want ErrSubWalletInactive, got %v", err)
	}

	recordActivity(t, m, id, 0)
	idx, err := m.AddSubWallet(ctx, id, "", nil)
	if err != nil {
		t.Fatalf("add after activity: %v", err)
	}
	if idx != 1 {
		t.Fatalf("new index = %d, want 1", idx)
	}

	// The new last sub-wallet has no activity yet; gate closes again.
	if _, err := m.AddSubWallet(ctx, id, "", nil); !errors.Is(err, ErrSubWalletInactive) {
		t.Fatalf("want ErrSubWalletInactive for index 2, got %v", err)
	}
}

func TestAddSubWalletLiveOverride(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	// Persisted flag absent, but the connected wallet (the selection is
	// mk/0) shows a live balance: gate opens and the flag is persisted.
	idx, err := m.AddSubWallet(ctx, id, "", &LiveActivity{HasBalance: true})
	if err != nil {
		t.Fatalf("add with live override: %v", err)
	}
	if idx != 1 {
		t.Fatalf("new index = %d", idx)
	}

	s, err := walletdb.Load(ctx, m.store, time.Now())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sw := s.FindMasterKey(id).ActiveSubWallet(0)
	if sw.HasActivity == nil || !*sw.HasActivity {
		t.Fatal("live activity was not persisted to the flag")
	}
}

func TestAddSubWalletCapacity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	for i := 0; i < mnemonic.MaxSubWallets-1; i++ {
		recordActivity(t, m, id, i)
		idx, err := m.AddSubWallet(ctx, id, "", nil)
		if err != nil {
			t.Fatalf("add %d: %v", i+1, err)
		}
		if idx != i+1 {
			t.Fatalf("add %d: index = %d", i+1, idx)
		}
	}

	recordActivity(t, m, id, mnemonic.MaxSubWallets-1)
	if _, err := m.AddSubWallet(ctx, id, "", nil); !errors.Is(err, walletdb.ErrSubWalletCapacity) {
		t.Fatalf("want ErrSubWalletCapacity, got %v", err)
	}
}

func TestArchiveRestore(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	recordActivity(t, m, id, 0)
	if _, err := m.AddSubWallet(ctx, id, "", nil); err != nil {
		t.Fatalf("add 1: %v", err)
	}
	recordActivity(t, m, id, 1)
	if _, err := m.AddSubWallet(ctx, id, "", nil); err != nil {
		t.Fatalf("add 2: %v", err)
	}

	if err := m.ArchiveSubWallet(ctx, id, 1); err != nil {
		t.Fatalf("archive: %v", err)
	}
	s, err := walletdb.Load(ctx, m.store, time.Now())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mk := s.FindMasterKey(id)
	if mk.ActiveSubWallet(1) != nil {
		t.Fatal("index 1 still active after archive")
	}
	arch := mk.ArchivedSubWallet(1)
	if arch == nil || arch.ArchivedAt == 0 {
		t.Fatalf("archived entry = %+v", arch)
	}

	// Archived index 1 stays occupied: the next add gets 3.
	recordActivity(t, m, id, 2)
	idx, err := m.AddSubWallet(ctx, id, "", nil)
	if err != nil {
		t.Fatalf("add after archive: %v", err)
	}
	if idx != 3 {
		t.Fatalf("index after archive = %d, want 3", idx)
	}

	if err := m.RestoreSubWallet(ctx, id, 1); err != nil {
		t.Fatalf("restore: %v", err)
	}
	s, err = walletdb.Load(ctx, m.store, time.Now())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mk = s.FindMasterKey(id)
	restored := mk.ActiveSubWallet(1)
	if restored == nil || restored.ArchivedAt != 0 {
		t.Fatalf("restored entry = %+v", restored)
	}
	for i, sw := range mk.SubWallets {
		if sw.Index != i {
			t.Fatalf("active list not sorted: %+v", mk.SubWallets)
		}
	}
}

func TestArchiveGuards(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if err := m.ArchiveSubWallet(ctx, id, 0); !errors.Is(err, ErrMainSubWallet) {
		t.Fatalf("want ErrMainSubWallet, got %v", err)
	}
	if err := m.ArchiveSubWallet(ctx, id, 7); !errors.Is(err, ErrSubWalletNotFound) {
		t.Fatalf("want ErrSubWalletNotFound, got %v", err)
	}
	if err := m.ArchiveSubWallet(ctx, "nope", 1); !errors.Is(err, ErrMasterKeyNotFound) {
		t.Fatalf("want ErrMasterKeyNotFound, got %v", err)
	}
}

func TestSwitchWallet(t *testing.T) {
	ctx := context.Background()
	sess := &fakeSession{}
	m := newTestManager(t, sess, nil)

	id1, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import 1: %v", err)
	}
	id2, err := m.CreateMasterKey(ctx, testPIN, "")
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}
	_ = id2

	if err := m.SwitchWallet(ctx, id1, 0, testPIN); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if len(sess.calls) != 2 || sess.calls[0] != "disconnect" || sess.calls[1] != "connect" {
		t.Fatalf("session calls = %v", sess.calls)
	}
	// Sub-wallet 0 is the identity derivation.
	if sess.connected != testPhrase {
		t.Fatalf("connected mnemonic = %q", sess.connected)
	}

	info, err := m.GetActiveWalletInfo(ctx)
	if err != nil || info == nil {
		t.Fatalf("active info: %+v %v", info, err)
	}
	if info.MasterKeyID != id1 {
		t.Fatalf("active = %s, want %s", info.MasterKeyID, id1)
	}
}

func TestSwitchWalletSessionFailurePersists(t *testing.T) {
	ctx := context.Background()
	sess := &fakeSession{failConnect: errors.New("node offline")}
	m := newTestManager(t, sess, nil)

	id1, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import 1: %v", err)
	}
	id2, err := m.CreateMasterKey(ctx, testPIN, "")
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}
	if id2 == id1 {
		t.Fatal("duplicate master key ids")
	}

	err = m.SwitchWallet(ctx, id1, 0, testPIN)
	var ext *ExternalError
	if !errors.As(err, &ext) {
		t.Fatalf("want ExternalError, got %v", err)
	}

	// The selection change survived the SDK failure.
	info, err := m.GetActiveWalletInfo(ctx)
	if err != nil || info == nil {
		t.Fatalf("active info: %+v %v", info, err)
	}
	if info.MasterKeyID != id1 {
		t.Fatalf("selection rolled back to %s", info.MasterKeyID)
	}
}

func TestSwitchWalletDisconnectFailureSurfaced(t *testing.T) {
	ctx := context.Background()
	sess := &fakeSession{failDisconnect: errors.New("teardown stuck")}
	m := newTestManager(t, sess, nil)

	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	err = m.SwitchWallet(ctx, id, 0, testPIN)
	var ext *ExternalError
	if !errors.As(err, &ext) {
		t.Fatalf("want ExternalError, got %v", err)
	}

	// The new session was still brought up and the selection persisted.
	if sess.connected != testPhrase {
		t.Fatalf("connected mnemonic = %q", sess.connected)
	}
	info, err := m.GetActiveWalletInfo(ctx)
	if err != nil || info == nil || info.MasterKeyID != id {
		t.Fatalf("active info: %+v %v", info, err)
	}
}

func TestSwitchWalletUnknownTargets(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := m.SwitchWallet(ctx, "nope", 0, ""); !errors.Is(err, ErrMasterKeyNotFound) {
		t.Fatalf("want ErrMasterKeyNotFound, got %v", err)
	}
	if err := m.SwitchWallet(ctx, id, 9, ""); !errors.Is(err, ErrSubWalletNotFound) {
		t.Fatalf("want ErrSubWalletNotFound, got %v", err)
	}
}

func TestDeleteMasterKey(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)

	id1, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import 1: %v", err)
	}
	id2, err := m.CreateMasterKey(ctx, testPIN, "")
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}

	if _, err := m.DeleteMasterKey(ctx, id2, "999999"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("want ErrInvalidPIN, got %v", err)
	}

	// id2 is the active key; deleting it falls back to id1.
	res, err := m.DeleteMasterKey(ctx, id2, testPIN)
	if err != nil {
		t.Fatalf("delete active: %v", err)
	}
	if !res.WasActive || res.NewActiveID != id1 {
		t.Fatalf("delete result = %+v", res)
	}

	// Deleting the last key leaves the installation with no wallet.
	res, err = m.DeleteMasterKey(ctx, id1, testPIN)
	if err != nil {
		t.Fatalf("delete last: %v", err)
	}
	if !res.WasActive || res.NewActiveID != "" {
		t.Fatalf("delete result = %+v", res)
	}
	info, err := m.GetActiveWalletInfo(ctx)
	if err != nil {
		t.Fatalf("active info: %v", err)
	}
	if info != nil {
		t.Fatalf("active info after delete = %+v", info)
	}
	exists, err := m.WalletExists(ctx)
	if err != nil || exists {
		t.Fatalf("wallet exists after deleting all keys: %v %v", exists, err)
	}
}

func TestPINAttemptLimit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	var limited bool
	for i := 0; i < 8; i++ {
		_, err := m.GetMnemonic(ctx, id, "000000")
		if errors.Is(err, ErrTooManyAttempts) {
			limited = true
			break
		}
		if !errors.Is(err, crypto.ErrDecryptionFailed) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if !limited {
		t.Fatal("limiter never tripped")
	}
}

func TestBiometricPIN(t *testing.T) {
	ctx := context.Background()
	bio := &fakeBiometric{confirm: true}
	m := newTestManager(t, nil, bio)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if err := m.CacheBiometricPIN(ctx, id, testPIN); err != nil {
		t.Fatalf("cache: %v", err)
	}
	pin, err := m.BiometricPIN(ctx, id)
	if err != nil {
		t.Fatalf("biometric pin: %v", err)
	}
	if pin != testPIN || bio.asked != 1 {
		t.Fatalf("pin = %q, prompts = %d", pin, bio.asked)
	}

	bio.confirm = false
	if _, err := m.BiometricPIN(ctx, id); !errors.Is(err, ErrBiometricDenied) {
		t.Fatalf("want ErrBiometricDenied, got %v", err)
	}

	// Deleting the master key clears the cache.
	if _, err := m.DeleteMasterKey(ctx, id, testPIN); err != nil {
		t.Fatalf("delete: %v", err)
	}
	bio.confirm = true
	if _, err := m.BiometricPIN(ctx, id); !errors.Is(err, ErrMasterKeyNotFound) {
		t.Fatalf("want ErrMasterKeyNotFound after delete, got %v", err)
	}
}

func TestLockStateAndActivity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)

	locked, err := m.IsLocked(ctx)
	if err != nil || locked {
		t.Fatalf("fresh lock state: %v %v", locked, err)
	}
	if err := m.SetLocked(ctx, true); err != nil {
		t.Fatalf("set locked: %v", err)
	}
	locked, err = m.IsLocked(ctx)
	if err != nil || !locked {
		t.Fatalf("lock state after set: %v %v", locked, err)
	}

	when, err := m.LastActivity(ctx)
	if err != nil || !when.IsZero() {
		t.Fatalf("fresh last activity: %v %v", when, err)
	}
	if err := m.TouchActivity(ctx); err != nil {
		t.Fatalf("touch: %v", err)
	}
	when, err = m.LastActivity(ctx)
	if err != nil || when.IsZero() {
		t.Fatalf("last activity after touch: %v %v", when, err)
	}
}

func TestFactoryReset(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := m.CacheBiometricPIN(ctx, id, testPIN); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if err := m.SetLocked(ctx, true); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := m.FactoryReset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	exists, err := m.WalletExists(ctx)
	if err != nil || exists {
		t.Fatalf("wallet exists after reset: %v %v", exists, err)
	}
	locked, err := m.IsLocked(ctx)
	if err != nil || locked {
		t.Fatalf("locked after reset: %v %v", locked, err)
	}
	if _, err := m.store.Get(ctx, storage.BiometricPINKey(id)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("biometric cache survived reset: %v", err)
	}
}

func TestFactoryResetCorruptStorage(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)

	// An undecodable blob with a valid stamp: loads fail, but the reset
	// must still wipe everything.
	if err := m.store.Put(ctx, storage.KeyWalletStorage, []byte("{not json")); err != nil {
		t.Fatalf("put blob: %v", err)
	}
	if err := m.store.Put(ctx, storage.KeySchemaVersion, []byte("1")); err != nil {
		t.Fatalf("put stamp: %v", err)
	}

	if err := m.FactoryReset(ctx); err != nil {
		t.Fatalf("reset over corrupt storage: %v", err)
	}
	if _, err := m.store.Get(ctx, storage.KeyWalletStorage); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("blob survived reset: %v", err)
	}
	exists, err := m.WalletExists(ctx)
	if err != nil || exists {
		t.Fatalf("wallet exists after reset: %v %v", exists, err)
	}
}

func TestMasterKeyCapacity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	for i := 0; i < MaxMasterKeys; i++ {
		if _, err := m.CreateMasterKey(ctx, testPIN, ""); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := m.CreateMasterKey(ctx, testPIN, ""); !errors.Is(err, ErrMasterKeyCapacity) {
		t.Fatalf("want ErrMasterKeyCapacity, got %v", err)
	}
}

func TestLegacyFormatWrites(t *testing.T) {
	ctx := context.Background()
	m, err := New(Config{
		Store:           storage.NewFileSecretStore(t.TempDir()),
		UseLegacyFormat: true,
		Clock:           clock.NewTestClock(time.Unix(1_700_000_000, 0)),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	s, err := walletdb.Load(ctx, m.store, time.Now())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sealed := s.FindMasterKey(id).EncryptedMnemonic
	if sealed.Version != crypto.VersionXOR {
		t.Fatalf("stored version = %d, want %d", sealed.Version, crypto.VersionXOR)
	}
	got, err := m.GetMnemonic(ctx, id, testPIN)
	if err != nil || got != testPhrase {
		t.Fatalf("get mnemonic: %q %v", got, err)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, nil)
	id, err := m.ImportMasterKey(ctx, testPhrase, testPIN, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if err := m.RenameMasterKey(ctx, id, "Savings"); err != nil {
		t.Fatalf("rename master: %v", err)
	}
	if err := m.RenameSubWallet(ctx, id, 0, "Spending"); err != nil {
		t.Fatalf("rename sub: %v", err)
	}
	info, err := m.GetActiveWalletInfo(ctx)
	if err != nil || info == nil {
		t.Fatalf("info: %+v %v", info, err)
	}
	if info.MasterKeyNickname != "Savings" || info.SubWalletNickname != "Spending" {
		t.Fatalf("nicknames = %q/%q", info.MasterKeyNickname, info.SubWalletNickname)
	}
	if err := m.RenameSubWallet(ctx, id, 9, "x"); !errors.Is(err, ErrSubWalletNotFound) {
		t.Fatalf("want ErrSubWalletNotFound, got %v", err)
	}
}

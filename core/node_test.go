package core

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rentescrow/core/events"
	"rentescrow/core/genesis"
	ledgerstate "rentescrow/core/state"
	"rentescrow/core/types"
	"rentescrow/crypto"
	"rentescrow/native/rental"
	"rentescrow/storage"
)

type recordingEmitter struct {
	mu        sync.Mutex
	committed []events.Committed
}

func (r *recordingEmitter) Emit(evt events.Event) {
	c, ok := evt.(events.Committed)
	if !ok {
		return
	}
	r.mu.Lock()
	r.committed = append(r.committed, c)
	r.mu.Unlock()
}

func (r *recordingEmitter) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.committed))
	for _, c := range r.committed {
		out = append(out, c.Inner.Type)
	}
	return out
}

func testGenesis(owner, renter [20]byte) *genesis.GenesisSpec {
	return &genesis.GenesisSpec{
		GenesisTime: "2024-01-01T00:00:00Z",
		Alloc: map[string]string{
			crypto.FormatAddress(owner):  "1000",
			crypto.FormatAddress(renter): "500",
		},
		Assets: []genesis.AssetSpec{{
			Owner: crypto.FormatAddress(owner),
			Mint:  "0x7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a7a",
		}},
	}
}

func genesisAssetAccount(t *testing.T, owner [20]byte) [20]byte {
	t.Helper()
	var mint [32]byte
	for i := range mint {
		mint[i] = 0x7a
	}
	return ledgerstate.AssetAccountAddress(owner, mint)
}

func TestNodeAppliesGenesisOnce(t *testing.T) {
	owner := newTestAccount(t)
	renter := newTestAccount(t)
	db := storage.NewMemDB()
	defer db.Close()

	node, err := NewNode(db, NodeConfig{Genesis: testGenesis(owner.addr, renter.addr)})
	require.NoError(t, err)
	require.EqualValues(t, 0, node.Height())

	acc, err := node.GetAccount(owner.addr[:])
	require.NoError(t, err)
	require.EqualValues(t, 1000, acc.Balance.Int64())

	asset, ok, err := node.AssetAccount(genesisAssetAccount(t, owner.addr))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, owner.addr, asset.Owner)

	// A second node on the same database resumes from the stored head.
	reopened, err := NewNode(db, NodeConfig{})
	require.NoError(t, err)
	require.Equal(t, node.StateRoot(), reopened.StateRoot())
}

func TestNodeSubmitCommitsAndPublishes(t *testing.T) {
	owner := newTestAccount(t)
	renter := newTestAccount(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	db := storage.NewMemDB()
	defer db.Close()

	node, err := NewNode(db, NodeConfig{Genesis: testGenesis(owner.addr, renter.addr), Clock: clock.Now})
	require.NoError(t, err)
	sink := &recordingEmitter{}
	node.Subscribe(sink)

	ref, err := node.DeriveRecord(owner.addr)
	require.NoError(t, err)
	ownerAsset := genesisAssetAccount(t, owner.addr)
	payload := types.RentalInitializePayload{
		Record:     crypto.FormatAddress(ref.Address),
		Bump:       ref.Bump,
		OwnerAsset: crypto.FormatAddress(ownerAsset),
		Price:      100,
		Expiration: clock.now.Unix() + 600,
	}
	ctx := context.Background()
	genesisRoot := node.StateRoot()
	receipt, err := node.SubmitTransaction(ctx, signedTx(t, owner, 0, types.TxTypeRentalInitialize, payload))
	require.NoError(t, err)
	require.EqualValues(t, 1, node.Height())
	require.NotEqual(t, genesisRoot, node.StateRoot())

	view, ok := node.Rental(owner.addr)
	require.True(t, ok)
	require.Equal(t, rental.PhaseListed, view.Phase)
	require.False(t, view.Active)

	_, err = node.SubmitTransaction(ctx, signedTx(t, renter, 0, types.TxTypeRentalBorrow, types.RentalBorrowPayload{Record: payload.Record, Bump: payload.Bump}))
	require.NoError(t, err)
	require.True(t, node.ActiveRental(owner.addr))

	// A rejected transaction neither advances the height nor publishes.
	published := len(sink.eventTypes())
	_, err = node.SubmitTransaction(ctx, signedTx(t, renter, 1, types.TxTypeRentalBorrow, types.RentalBorrowPayload{Record: payload.Record, Bump: payload.Bump}))
	require.ErrorIs(t, err, rental.ErrAlreadyRented)
	require.EqualValues(t, 2, node.Height())
	require.Len(t, sink.eventTypes(), published)

	clock.advance(time.Hour)
	byAddr, ok, err := node.RentalAt(ref.Address)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rental.PhaseReclaimable, byAddr.Phase)

	_, err = node.SubmitTransaction(ctx, signedTx(t, owner, 1, types.TxTypeRentalWithdraw, types.RentalWithdrawPayload{
		Record:     payload.Record,
		Bump:       payload.Bump,
		Custody:    crypto.FormatAddress(receipt.Record.Custody),
		OwnerAsset: payload.OwnerAsset,
	}))
	require.NoError(t, err)
	_, ok = node.Rental(owner.addr)
	require.False(t, ok)

	kinds := sink.eventTypes()
	require.Contains(t, kinds, rental.EventTypeListed)
	require.Contains(t, kinds, rental.EventTypeBorrowed)
	require.Contains(t, kinds, rental.EventTypeWithdrawn)
	sink.mu.Lock()
	last := sink.committed[len(sink.committed)-1]
	sink.mu.Unlock()
	require.EqualValues(t, 3, last.Height)
}

func TestNodePersistsAcrossRestart(t *testing.T) {
	owner := newTestAccount(t)
	renter := newTestAccount(t)
	path := filepath.Join(t.TempDir(), "ledger")

	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	node, err := NewNode(db, NodeConfig{Genesis: testGenesis(owner.addr, renter.addr)})
	require.NoError(t, err)
	tx := &types.Transaction{Type: types.TxTypeTransfer, To: renter.addr[:], Value: big.NewInt(250)}
	require.NoError(t, tx.Sign(owner.key.PrivateKey))
	_, err = node.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	root := node.StateRoot()
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	restarted, err := NewNode(db, NodeConfig{})
	require.NoError(t, err)
	require.EqualValues(t, 1, restarted.Height())
	require.Equal(t, root, restarted.StateRoot())
	acc, err := restarted.GetAccount(renter.addr[:])
	require.NoError(t, err)
	require.EqualValues(t, 750, acc.Balance.Int64())
}

func TestNodeRejectsCancelledContext(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	node, err := NewNode(db, NodeConfig{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = node.SubmitTransaction(ctx, &types.Transaction{Type: types.TxTypeAssetMint})
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 0, node.Height())
}

type flakyHeadDB struct {
	*storage.MemDB
	failHeight bool
}

func (db *flakyHeadDB) Put(key, value []byte) error {
	if db.failHeight && bytes.Equal(key, headHeightKey) {
		return errors.New("disk full")
	}
	return db.MemDB.Put(key, value)
}

func TestNodeRollsBackWhenHeadCannotPersist(t *testing.T) {
	owner := newTestAccount(t)
	renter := newTestAccount(t)
	db := &flakyHeadDB{MemDB: storage.NewMemDB()}
	defer db.Close()

	node, err := NewNode(db, NodeConfig{Genesis: testGenesis(owner.addr, renter.addr)})
	require.NoError(t, err)
	sink := &recordingEmitter{}
	node.Subscribe(sink)
	genesisRoot := node.StateRoot()

	db.failHeight = true
	tx := &types.Transaction{Type: types.TxTypeTransfer, To: renter.addr[:], Value: big.NewInt(250)}
	require.NoError(t, tx.Sign(owner.key.PrivateKey))
	_, err = node.SubmitTransaction(context.Background(), tx)
	require.Error(t, err)
	require.EqualValues(t, 0, node.Height())
	require.Equal(t, genesisRoot, node.StateRoot())
	require.Empty(t, sink.eventTypes())
	acc, err := node.GetAccount(owner.addr[:])
	require.NoError(t, err)
	require.EqualValues(t, 1000, acc.Balance.Int64())
	require.EqualValues(t, 0, acc.Nonce)

	// the stranded transfer events must not ride along with the next commit
	db.failHeight = false
	_, err = node.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, []string{events.TypeTransfer}, sink.eventTypes())
	require.EqualValues(t, 1, sink.committed[0].Height)
	stored, err := db.Get(headRootKey)
	require.NoError(t, err)
	require.Equal(t, node.StateRoot().Bytes(), stored)
}

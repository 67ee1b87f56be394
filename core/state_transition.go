package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rentescrow/core/events"
	ledgerstate "rentescrow/core/state"
	"rentescrow/core/types"
	"rentescrow/crypto"
	"rentescrow/native/rental"
	"rentescrow/storage/trie"
)

var (
	// ErrNonceMismatch is returned when a signed transaction does not carry the
	// sender's next nonce.
	ErrNonceMismatch = errors.New("nonce mismatch")
	// ErrInvalidPayload wraps malformed transaction payloads.
	ErrInvalidPayload = errors.New("invalid transaction payload")
	// ErrInsufficientFunds is returned by native transfers.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownTxType is returned for transaction types the host does not
	// execute.
	ErrUnknownTxType = errors.New("unknown transaction type")
)

// RentalSettings configures the rental engine owned by the processor.
type RentalSettings struct {
	NamespaceTag  string
	Payout        rental.PayoutMode
	RecordDeposit *big.Int
}

// Receipt summarises the effects of an applied transaction.
type Receipt struct {
	TxHash        []byte
	Type          types.TxType
	// Height is set by the node once the transaction is committed.
	Height        uint64
	Sender        [20]byte
	RecordAddress *[20]byte
	Record        *rental.Record
	Swept         *big.Int
	Mint          *[32]byte
	AssetAccount  *[20]byte
	Events        []types.Event
}

// StateProcessor applies transactions to the state trie. Each transaction runs
// against a snapshot; any failure reverts every write it made, so the ledger
// only ever observes complete operations.
type StateProcessor struct {
	Trie          *trie.Trie
	manager       *ledgerstate.Manager
	rental        *rental.Engine
	pending       *events.Buffer
	committedRoot common.Hash
	events        []types.Event
	nowFn         func() time.Time
}

func NewStateProcessor(tr *trie.Trie) (*StateProcessor, error) {
	if tr == nil {
		return nil, fmt.Errorf("state trie must not be nil")
	}
	manager := ledgerstate.NewManager(tr)
	sp := &StateProcessor{
		Trie:          tr,
		manager:       manager,
		pending:       &events.Buffer{},
		committedRoot: tr.Root(),
		events:        make([]types.Event, 0),
		nowFn:         time.Now,
	}
	engine := rental.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(sp.pending)
	engine.SetPauses(manager)
	engine.SetNowFunc(func() int64 { return sp.now().Unix() })
	sp.rental = engine
	return sp, nil
}

// ConfigureRental applies node configuration to the rental engine.
func (sp *StateProcessor) ConfigureRental(settings RentalSettings) {
	sp.rental.SetNamespaceTag(settings.NamespaceTag)
	sp.rental.SetPayoutMode(settings.Payout)
	sp.rental.SetRecordDeposit(settings.RecordDeposit)
}

// SetClock overrides the time source used to evaluate rental windows.
func (sp *StateProcessor) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	sp.nowFn = now
}

func (sp *StateProcessor) now() time.Time {
	if sp.nowFn == nil {
		return time.Now()
	}
	return sp.nowFn()
}

// Manager exposes typed state access for read paths.
func (sp *StateProcessor) Manager() *ledgerstate.Manager { return sp.manager }

// Rental exposes the rental engine for read paths.
func (sp *StateProcessor) Rental() *rental.Engine { return sp.rental }

// CurrentRoot returns the last committed state root.
func (sp *StateProcessor) CurrentRoot() common.Hash {
	return sp.committedRoot
}

// PendingRoot returns the root of the trie including in-memory mutations.
func (sp *StateProcessor) PendingRoot() common.Hash {
	return sp.Trie.Hash()
}

// ResetToRoot discards any in-memory changes and reloads the trie at the
// provided root hash.
func (sp *StateProcessor) ResetToRoot(root common.Hash) error {
	if err := sp.Trie.Reset(root); err != nil {
		return err
	}
	sp.committedRoot = root
	return nil
}

// Commit persists the current trie contents and returns the resulting state
// root.
func (sp *StateProcessor) Commit(height uint64) (common.Hash, error) {
	newRoot, err := sp.Trie.Commit(sp.committedRoot, height)
	if err != nil {
		return common.Hash{}, err
	}
	sp.committedRoot = newRoot
	return newRoot, nil
}

// ApplyTransaction executes tx atomically. On error the state is left exactly
// as it was before the call.
func (sp *StateProcessor) ApplyTransaction(tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidPayload)
	}
	caller, err := recoverCaller(tx)
	if err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	receipt := &Receipt{TxHash: hash, Type: tx.Type, Sender: caller.Address}

	snap := sp.manager.Snapshot()
	sp.pending.Discard()
	fail := func(err error) (*Receipt, error) {
		sp.manager.Revert(snap)
		sp.pending.Discard()
		return nil, err
	}

	if caller.Signed {
		account, err := sp.manager.GetAccount(caller.Address[:])
		if err != nil {
			return fail(err)
		}
		if account.Nonce != tx.Nonce {
			return fail(fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, account.Nonce, tx.Nonce))
		}
	}

	if err := sp.dispatch(tx, caller, receipt); err != nil {
		return fail(err)
	}

	if caller.Signed {
		account, err := sp.manager.GetAccount(caller.Address[:])
		if err != nil {
			return fail(err)
		}
		account.Nonce++
		if err := sp.manager.PutAccount(caller.Address[:], account); err != nil {
			return fail(err)
		}
	}

	for _, evt := range events.ToTypes(sp.pending.Drain()) {
		sp.AppendEvent(evt)
		receipt.Events = append(receipt.Events, copyEvent(evt))
	}
	return receipt, nil
}

func recoverCaller(tx *types.Transaction) (rental.Caller, error) {
	from, err := tx.From()
	switch {
	case err == nil:
		var addr [20]byte
		copy(addr[:], from)
		return rental.SignedCaller(addr), nil
	case errors.Is(err, types.ErrUnsigned):
		return rental.Caller{}, nil
	default:
		return rental.Caller{}, fmt.Errorf("recover signer: %w", err)
	}
}

func (sp *StateProcessor) dispatch(tx *types.Transaction, caller rental.Caller, receipt *Receipt) error {
	switch tx.Type {
	case types.TxTypeTransfer:
		return sp.applyTransfer(tx, caller)
	case types.TxTypeAssetMint:
		return sp.applyAssetMint(tx, caller, receipt)
	case types.TxTypeRentalInitialize:
		return sp.applyRentalInitialize(tx, caller, receipt)
	case types.TxTypeRentalBorrow:
		return sp.applyRentalBorrow(tx, caller, receipt)
	case types.TxTypeRentalWithdraw:
		return sp.applyRentalWithdraw(tx, caller, receipt)
	}
	return fmt.Errorf("%w: %d", ErrUnknownTxType, tx.Type)
}

func (sp *StateProcessor) applyTransfer(tx *types.Transaction, caller rental.Caller) error {
	if !caller.Signed {
		return rental.ErrNoSigner
	}
	if len(tx.To) != crypto.AddressLength {
		return fmt.Errorf("%w: recipient must be %d bytes", ErrInvalidPayload, crypto.AddressLength)
	}
	if tx.Value == nil || tx.Value.Sign() <= 0 {
		return fmt.Errorf("%w: transfer value must be positive", ErrInvalidPayload)
	}
	var to [20]byte
	copy(to[:], tx.To)
	if to == caller.Address {
		return nil
	}
	fromAcc, err := sp.manager.GetAccount(caller.Address[:])
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(tx.Value) < 0 {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, fromAcc.Balance, tx.Value)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, tx.Value)
	if err := sp.manager.PutAccount(caller.Address[:], fromAcc); err != nil {
		return err
	}
	toAcc, err := sp.manager.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, tx.Value)
	if err := sp.manager.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	sp.pending.Emit(events.Transfer{From: caller.Address, To: to, Amount: new(big.Int).Set(tx.Value)})
	return nil
}

func (sp *StateProcessor) applyAssetMint(tx *types.Transaction, caller rental.Caller, receipt *Receipt) error {
	if !caller.Signed {
		return rental.ErrNoSigner
	}
	mint := ledgerstate.MintID(caller.Address, tx.Nonce)
	account := ledgerstate.AssetAccountAddress(caller.Address, mint)
	if _, exists, err := sp.manager.AssetAccount(account); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("asset account %s already exists", crypto.FormatAddress(account))
	}
	if err := sp.manager.PutAssetAccount(account, &types.AssetAccount{Mint: mint, Owner: caller.Address, Amount: 1}); err != nil {
		return err
	}
	sp.pending.Emit(events.AssetTransfer{Mint: mint, To: account, Authority: caller.Address, Amount: 1})
	receipt.Mint = &mint
	receipt.AssetAccount = &account
	return nil
}

func decodePayload(data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func parseRecordRef(addr string, bump uint8) (rental.RecordRef, error) {
	parsed, err := crypto.ParseAddress(addr)
	if err != nil {
		return rental.RecordRef{}, fmt.Errorf("%w: record: %v", ErrInvalidPayload, err)
	}
	return rental.RecordRef{Address: parsed, Bump: bump}, nil
}

func parsePayloadAddress(field, addr string) ([20]byte, error) {
	parsed, err := crypto.ParseAddress(addr)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, field, err)
	}
	return parsed, nil
}

func (sp *StateProcessor) applyRentalInitialize(tx *types.Transaction, caller rental.Caller, receipt *Receipt) error {
	var payload types.RentalInitializePayload
	if err := decodePayload(tx.Data, &payload); err != nil {
		return err
	}
	ref, err := parseRecordRef(payload.Record, payload.Bump)
	if err != nil {
		return err
	}
	ownerAsset, err := parsePayloadAddress("ownerAsset", payload.OwnerAsset)
	if err != nil {
		return err
	}
	rec, err := sp.rental.Initialize(caller, rental.InitializeParams{
		Record:     ref,
		OwnerAsset: ownerAsset,
		Price:      payload.Price,
		Expiration: payload.Expiration,
	})
	if err != nil {
		return err
	}
	receipt.RecordAddress = &ref.Address
	receipt.Record = rec
	return nil
}

func (sp *StateProcessor) applyRentalBorrow(tx *types.Transaction, caller rental.Caller, receipt *Receipt) error {
	var payload types.RentalBorrowPayload
	if err := decodePayload(tx.Data, &payload); err != nil {
		return err
	}
	ref, err := parseRecordRef(payload.Record, payload.Bump)
	if err != nil {
		return err
	}
	rec, err := sp.rental.Borrow(caller, ref)
	if err != nil {
		return err
	}
	receipt.RecordAddress = &ref.Address
	receipt.Record = rec
	return nil
}

func (sp *StateProcessor) applyRentalWithdraw(tx *types.Transaction, caller rental.Caller, receipt *Receipt) error {
	var payload types.RentalWithdrawPayload
	if err := decodePayload(tx.Data, &payload); err != nil {
		return err
	}
	ref, err := parseRecordRef(payload.Record, payload.Bump)
	if err != nil {
		return err
	}
	custody, err := parsePayloadAddress("custody", payload.Custody)
	if err != nil {
		return err
	}
	ownerAsset, err := parsePayloadAddress("ownerAsset", payload.OwnerAsset)
	if err != nil {
		return err
	}
	res, err := sp.rental.Withdraw(caller, rental.WithdrawParams{
		Record:     ref,
		Custody:    custody,
		OwnerAsset: ownerAsset,
	})
	if err != nil {
		return err
	}
	receipt.RecordAddress = &ref.Address
	receipt.Record = res.Record
	receipt.Swept = res.Swept
	return nil
}

func copyEvent(evt *types.Event) types.Event {
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	return types.Event{Type: evt.Type, Attributes: attrs}
}

func (sp *StateProcessor) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	sp.events = append(sp.events, copyEvent(evt))
}

// Events returns the events applied since the last DrainEvents call.
func (sp *StateProcessor) Events() []types.Event {
	out := make([]types.Event, len(sp.events))
	for i := range sp.events {
		out[i] = copyEvent(&sp.events[i])
	}
	return out
}

// DrainEvents returns and clears the applied events.
func (sp *StateProcessor) DrainEvents() []types.Event {
	out := sp.events
	sp.events = make([]types.Event, 0)
	return out
}

func (sp *StateProcessor) GetAccount(addr []byte) (*types.Account, error) {
	return sp.manager.GetAccount(addr)
}

func (sp *StateProcessor) PutAccount(addr []byte, account *types.Account) error {
	return sp.manager.PutAccount(addr, account)
}

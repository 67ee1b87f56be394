package rental

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"rentescrow/core/events"
	"rentescrow/core/types"
	"rentescrow/native/common"
)

// ModuleName is the identifier used by the pause guard.
const ModuleName = "rental"

var (
	errNilState = errors.New("rental engine: state not configured")
)

type engineState interface {
	RentalGet(addr [20]byte) (*Record, bool, error)
	RentalPut(addr [20]byte, rec *Record) error
	RentalDelete(addr [20]byte) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	AssetAccount(addr [20]byte) (*types.AssetAccount, bool, error)
	PutAssetAccount(addr [20]byte, account *types.AssetAccount) error
	DeleteAssetAccount(addr [20]byte) error
}

// PayoutMode selects who receives the rental price.
type PayoutMode uint8

const (
	// PayoutOwner pays the price straight to the token owner.
	PayoutOwner PayoutMode = iota
	// PayoutEscrow parks the price in the record account until withdraw
	// sweeps it to the owner.
	PayoutEscrow
)

// ParsePayoutMode maps a configuration string to a payout mode.
func ParsePayoutMode(v string) (PayoutMode, error) {
	switch v {
	case "", "owner":
		return PayoutOwner, nil
	case "escrow":
		return PayoutEscrow, nil
	default:
		return PayoutOwner, fmt.Errorf("rental: unknown payout mode %q", v)
	}
}

// Engine implements the rental escrow state machine over a pluggable state
// backend. It relies on the host to run each operation as one atomic
// transaction and performs no rollback of its own; writes are ordered so that
// the record itself is always persisted last.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	pauses        common.PauseView
	tag           []byte
	payout        PayoutMode
	recordDeposit *big.Int
	nowFn         func() int64
}

// NewEngine creates a rental engine with a no-op emitter, the default
// namespace tag and owner payouts.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		tag:           []byte(NamespaceTag),
		recordDeposit: big.NewInt(0),
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetPayoutMode selects the payee for borrow payments.
func (e *Engine) SetPayoutMode(mode PayoutMode) { e.payout = mode }

// SetNamespaceTag overrides the seed prefix of record addresses. Empty tags
// fall back to NamespaceTag.
func (e *Engine) SetNamespaceTag(tag string) {
	if tag == "" {
		tag = NamespaceTag
	}
	e.tag = []byte(tag)
}

// NamespaceTag returns the seed prefix in use.
func (e *Engine) NamespaceTag() []byte {
	return append([]byte(nil), e.tag...)
}

// SetRecordDeposit configures the native units an owner locks into the
// record account at listing time. They are returned by the withdraw sweep.
func (e *Engine) SetRecordDeposit(amount *big.Int) {
	e.recordDeposit = cloneBigInt(amount)
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Derive returns the record reference for owner under the engine's namespace.
func (e *Engine) Derive(owner [20]byte) (RecordRef, error) {
	addr, bump, err := DeriveAddress(e.tag, owner)
	if err != nil {
		return RecordRef{}, err
	}
	return RecordRef{Address: addr, Bump: bump}, nil
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return common.Guard(e.pauses, ModuleName)
}

// loadVerified reads the record at the presented address and checks the
// derivation proof against the stored owner.
func (e *Engine) loadVerified(ref RecordRef) (*Record, error) {
	rec, ok, err := e.state.RentalGet(ref.Address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordNotFound
	}
	if err := requireDerived(e.tag, ref, rec.Owner); err != nil {
		return nil, err
	}
	if rec.Bump != ref.Bump {
		return nil, ErrAddressMismatch
	}
	return rec, nil
}

// InitializeParams describes a new listing.
type InitializeParams struct {
	Record     RecordRef
	OwnerAsset [20]byte
	Price      uint64
	Expiration int64
}

// Initialize places the owner's asset into escrow custody and records the
// listing at its derived address.
func (e *Engine) Initialize(owner Caller, p InitializeParams) (*Record, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := requireSigner(owner); err != nil {
		return nil, err
	}
	if err := requireDerived(e.tag, p.Record, owner.Address); err != nil {
		return nil, err
	}
	if _, exists, err := e.state.RentalGet(p.Record.Address); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrRecordExists
	}
	if p.Price == 0 {
		return nil, ErrInvalidPrice
	}
	if p.Expiration <= e.now() {
		return nil, ErrInvalidExpiration
	}
	asset, ok, err := e.state.AssetAccount(p.OwnerAsset)
	if err != nil {
		return nil, err
	}
	if !ok || asset.Amount != assetUnit {
		return nil, ErrInvalidAsset
	}
	if asset.Owner != owner.Address {
		return nil, ErrUnauthorizedAsset
	}
	custody := CustodyAddress(p.Record.Address, asset.Mint)
	if existing, ok, err := e.state.AssetAccount(custody); err != nil {
		return nil, err
	} else if ok && existing.Amount > 0 {
		return nil, fmt.Errorf("%w: custody account already holds an asset", ErrWrongAddress)
	}

	if err := e.transferValue(owner.Address, p.Record.Address, e.recordDeposit); err != nil {
		return nil, err
	}
	if err := e.transferAsset(p.OwnerAsset, custody, owner.Address, p.Record.Address); err != nil {
		return nil, err
	}
	rec := &Record{
		Owner:      owner.Address,
		Custody:    custody,
		Price:      p.Price,
		Expiration: p.Expiration,
		State:      CustodyEscrowed,
		Bump:       p.Record.Bump,
	}
	if err := e.state.RentalPut(p.Record.Address, rec); err != nil {
		return nil, err
	}
	e.emit(newRentalEvent(EventTypeListed, p.Record.Address, rec))
	return rec.Clone(), nil
}

// Borrow assigns the caller as renter after collecting the listed price.
func (e *Engine) Borrow(caller Caller, ref RecordRef) (*Record, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := requireSigner(caller); err != nil {
		return nil, err
	}
	rec, err := e.loadVerified(ref)
	if err != nil {
		return nil, err
	}
	if rec.Rented() {
		return nil, ErrAlreadyRented
	}
	now := e.now()
	if now >= rec.Expiration {
		return nil, ErrListingExpired
	}
	payee := rec.Owner
	if e.payout == PayoutEscrow {
		payee = ref.Address
	}
	if err := e.transferValue(caller.Address, payee, new(big.Int).SetUint64(rec.Price)); err != nil {
		return nil, err
	}
	renter := caller.Address
	rec.Renter = &renter
	rec.RentedAt = now
	rec.State = CustodyRented
	if err := e.state.RentalPut(ref.Address, rec); err != nil {
		return nil, err
	}
	e.emit(newRentalEvent(EventTypeBorrowed, ref.Address, rec))
	return rec.Clone(), nil
}

// WithdrawParams identifies the accounts the owner presents when reclaiming.
type WithdrawParams struct {
	Record     RecordRef
	Custody    [20]byte
	OwnerAsset [20]byte
}

// WithdrawResult reports what the reclamation moved.
type WithdrawResult struct {
	Record *Record
	Swept  *big.Int
}

// Withdraw returns the asset to its owner, sweeps the record account balance
// and destroys the record.
func (e *Engine) Withdraw(caller Caller, p WithdrawParams) (*WithdrawResult, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := requireSigner(caller); err != nil {
		return nil, err
	}
	rec, err := e.loadVerified(p.Record)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(rec, caller); err != nil {
		return nil, err
	}
	if err := requireAddress(p.Custody, rec.Custody); err != nil {
		return nil, err
	}
	if rec.Rented() && e.now() < rec.Expiration {
		return nil, ErrNotExpired
	}
	if p.OwnerAsset == rec.Custody {
		return nil, fmt.Errorf("%w: asset must return to an owner account", ErrWrongAddress)
	}

	if err := e.transferAsset(rec.Custody, p.OwnerAsset, p.Record.Address, rec.Owner); err != nil {
		return nil, err
	}
	custody, ok, err := e.state.AssetAccount(rec.Custody)
	if err != nil {
		return nil, err
	}
	if ok && custody.Amount == 0 {
		if err := e.state.DeleteAssetAccount(rec.Custody); err != nil {
			return nil, err
		}
	}
	swept, err := e.balanceOf(p.Record.Address)
	if err != nil {
		return nil, err
	}
	if err := e.transferValue(p.Record.Address, rec.Owner, swept); err != nil {
		return nil, err
	}
	if err := e.state.RentalDelete(p.Record.Address); err != nil {
		return nil, err
	}
	e.emit(newWithdrawnEvent(p.Record.Address, rec, swept))
	return &WithdrawResult{Record: rec.Clone(), Swept: swept}, nil
}

// ActiveRental reports whether owner's asset is currently rented out. Read
// failures and missing records report false.
func (e *Engine) ActiveRental(owner [20]byte) bool {
	rec, _, ok := e.Rental(owner)
	if !ok {
		return false
	}
	return rec.Phase(e.now()) == PhaseRented
}

// Rental returns the record for owner together with its derived reference.
func (e *Engine) Rental(owner [20]byte) (*Record, RecordRef, bool) {
	if e == nil || e.state == nil {
		return nil, RecordRef{}, false
	}
	ref, err := e.Derive(owner)
	if err != nil {
		return nil, RecordRef{}, false
	}
	rec, ok, err := e.state.RentalGet(ref.Address)
	if err != nil || !ok {
		return nil, ref, false
	}
	return rec, ref, true
}

// Now exposes the engine clock for read paths that classify records.
func (e *Engine) Now() int64 { return e.now() }

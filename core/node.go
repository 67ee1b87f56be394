package core

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"rentescrow/core/events"
	"rentescrow/core/genesis"
	ledgerstate "rentescrow/core/state"
	"rentescrow/core/types"
	"rentescrow/crypto"
	nativecommon "rentescrow/native/common"
	"rentescrow/native/rental"
	"rentescrow/observability"
	"rentescrow/observability/metrics"
	"rentescrow/storage"
	"rentescrow/storage/trie"
)

var (
	headRootKey   = []byte("rentescrow/head/root")
	headHeightKey = []byte("rentescrow/head/height")
)

// NodeConfig carries the settings a node needs at start-up.
type NodeConfig struct {
	Genesis *genesis.GenesisSpec
	Rental  RentalSettings
	Logger  *slog.Logger
	// Clock overrides the wall clock used for rental windows.
	Clock func() time.Time
	// AllowMigrate tolerates a state schema version mismatch.
	AllowMigrate bool
}

// Node is the central controller, wiring all components together. It executes
// transactions one at a time, committing the trie after each success so every
// operation is observed in a single total order.
type Node struct {
	db      storage.Database
	state   *StateProcessor
	stateMu sync.Mutex
	height  uint64
	fanout  *events.Fanout
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.RentalMetrics

	// txCounter feeds the OTLP pipeline; prometheus keeps its own series.
	txCounter metric.Int64Counter
}

func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root, height, found, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("open state trie: %w", err)
	}
	stateProcessor, err := NewStateProcessor(stateTrie)
	if err != nil {
		return nil, err
	}
	stateProcessor.ConfigureRental(cfg.Rental)
	if cfg.Clock != nil {
		stateProcessor.SetClock(cfg.Clock)
	}

	txCounter, err := otel.Meter("rentescrow/core").Int64Counter("rental.transactions",
		metric.WithDescription("Transactions processed by type and outcome."),
		metric.WithUnit("{transaction}"))
	if err != nil {
		return nil, fmt.Errorf("create transaction counter: %w", err)
	}

	n := &Node{
		db:      db,
		state:   stateProcessor,
		height:  height,
		fanout:  &events.Fanout{},
		logger:  logger.With(slog.String("component", "node")),
		tracer:  otel.Tracer("rentescrow/core"),
		metrics: metrics.Rental(),

		txCounter: txCounter,
	}

	if !found {
		if err := n.applyGenesis(cfg.Genesis); err != nil {
			return nil, err
		}
	} else if err := ledgerstate.EnsureStateVersion(stateTrie, cfg.AllowMigrate); err != nil {
		return nil, err
	}
	n.metrics.SetHeight(n.height)
	n.logger.Info("node ready",
		slog.Uint64("height", n.height),
		slog.String("root", n.state.CurrentRoot().Hex()))
	return n, nil
}

func loadHead(db storage.Database) ([]byte, uint64, bool, error) {
	root, err := db.Get(headRootKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("load head root: %w", err)
	}
	raw, err := db.Get(headHeightKey)
	if err != nil {
		return nil, 0, false, fmt.Errorf("load head height: %w", err)
	}
	if len(raw) != 8 {
		return nil, 0, false, fmt.Errorf("load head height: malformed value")
	}
	return root, binary.BigEndian.Uint64(raw), true, nil
}

func (n *Node) persistHead(root common.Hash, height uint64) error {
	if err := n.db.Put(headRootKey, root.Bytes()); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return n.db.Put(headHeightKey, buf[:])
}

func (n *Node) applyGenesis(spec *genesis.GenesisSpec) error {
	manager := n.state.Manager()
	if spec != nil {
		if err := genesis.Apply(spec, manager); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
	} else if err := manager.SetStateVersion(ledgerstate.StateVersion); err != nil {
		return err
	}
	root, err := n.state.Commit(0)
	if err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	if err := n.persistHead(root, 0); err != nil {
		return fmt.Errorf("persist genesis head: %w", err)
	}
	n.logger.Info("genesis applied", slog.String("root", root.Hex()))
	return nil
}

// Subscribe registers an emitter that receives every committed event wrapped
// in events.Committed.
func (n *Node) Subscribe(e events.Emitter) {
	n.fanout.Add(e)
}

// SubmitTransaction applies and commits tx. Transactions are serialised; a
// failed transaction leaves no trace in state.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidPayload)
	}
	ctx, span := n.tracer.Start(ctx, "rental.apply", trace.WithAttributes(
		attribute.String("tx.type", tx.Type.String()),
		attribute.Int64("tx.nonce", int64(tx.Nonce)),
	))
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	start := time.Now()
	op := tx.Type.String()
	receipt, err := n.state.ApplyTransaction(tx)
	if err != nil {
		kind := classify(err)
		n.metrics.ObserveRejected(op, kind, time.Since(start))
		n.txCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tx.type", op),
			attribute.String("outcome", kind)))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		n.logger.Warn("transaction rejected",
			slog.String("tx_type", op),
			slog.String("reason", kind),
			slog.Any("error", err))
		return nil, err
	}

	parent := n.state.CurrentRoot()
	height := n.height + 1
	root, err := n.state.Commit(height)
	if err != nil {
		if rbErr := n.state.ResetToRoot(parent); rbErr != nil {
			return nil, fmt.Errorf("state commit failed: %v (rollback failed: %w)", err, rbErr)
		}
		n.state.DrainEvents()
		return nil, fmt.Errorf("state commit failed: %w", err)
	}
	if err := n.persistHead(root, height); err != nil {
		n.state.DrainEvents()
		if rbErr := n.state.ResetToRoot(parent); rbErr != nil {
			return nil, fmt.Errorf("persist head: %v (rollback failed: %w)", err, rbErr)
		}
		// a half-written head must not outlive the failed transaction
		if rbErr := n.persistHead(parent, n.height); rbErr != nil {
			n.logger.Error("restore head failed", slog.Any("error", rbErr))
		}
		return nil, fmt.Errorf("persist head: %w", err)
	}
	n.height = height
	receipt.Height = height
	applied := n.state.DrainEvents()

	n.metrics.ObserveApplied(op, time.Since(start))
	n.txCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tx.type", op),
		attribute.String("outcome", "success")))
	n.metrics.SetHeight(height)
	if receipt.Swept != nil {
		swept, _ := new(big.Float).SetInt(receipt.Swept).Float64()
		n.metrics.AddSwept(swept)
	}
	span.SetAttributes(attribute.Int64("ledger.height", int64(height)))

	attrs := []any{
		slog.String("tx_type", op),
		slog.String("tx_hash", hex.EncodeToString(receipt.TxHash)),
		slog.Uint64("height", height),
	}
	if receipt.RecordAddress != nil {
		attrs = append(attrs, slog.String("record", crypto.FormatAddress(*receipt.RecordAddress)))
	}
	if receipt.Record != nil {
		attrs = append(attrs, slog.String("owner", crypto.FormatAddress(receipt.Record.Owner)))
		if receipt.Record.Renter != nil {
			attrs = append(attrs, slog.String("renter", crypto.FormatAddress(*receipt.Record.Renter)))
		}
	}
	n.logger.Info("transaction committed", attrs...)

	for i, evt := range applied {
		observability.Events().RecordEvent(evt.Type)
		n.fanout.Emit(events.Committed{Height: height, TxHash: receipt.TxHash, Index: i, Inner: evt})
	}
	return receipt, nil
}

func classify(err error) string {
	if kind := rental.ErrorKind(err); kind != "" {
		return kind
	}
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "module_paused"
	case errors.Is(err, ErrNonceMismatch):
		return "nonce_mismatch"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUnknownTxType):
		return "unknown_type"
	default:
		return "internal"
	}
}

// Height returns the number of committed transactions.
func (n *Node) Height() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.height
}

// StateRoot returns the last committed root.
func (n *Node) StateRoot() common.Hash {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.CurrentRoot()
}

func (n *Node) GetAccount(addr []byte) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.GetAccount(addr)
}

// AssetAccount returns the custody account stored at addr.
func (n *Node) AssetAccount(addr [20]byte) (*types.AssetAccount, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Manager().AssetAccount(addr)
}

// RentalView is the read model of a listing.
type RentalView struct {
	Ref    rental.RecordRef
	Record *rental.Record
	Phase  rental.Phase
	Active bool
}

// Rental returns the listing of owner, if any.
func (n *Node) Rental(owner [20]byte) (*RentalView, bool) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	engine := n.state.Rental()
	rec, ref, ok := engine.Rental(owner)
	if !ok {
		return nil, false
	}
	phase := rec.Phase(engine.Now())
	return &RentalView{Ref: ref, Record: rec, Phase: phase, Active: phase == rental.PhaseRented}, true
}

// RentalAt returns the listing stored at a record address.
func (n *Node) RentalAt(addr [20]byte) (*RentalView, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	rec, ok, err := n.state.Manager().RentalGet(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	engine := n.state.Rental()
	phase := rec.Phase(engine.Now())
	view := &RentalView{
		Ref:    rental.RecordRef{Address: addr, Bump: rec.Bump},
		Record: rec,
		Phase:  phase,
		Active: phase == rental.PhaseRented,
	}
	return view, true, nil
}

// ActiveRental reports whether owner's asset is currently rented out.
func (n *Node) ActiveRental(owner [20]byte) bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Rental().ActiveRental(owner)
}

// DeriveRecord returns the record reference of owner under the configured
// namespace.
func (n *Node) DeriveRecord(owner [20]byte) (rental.RecordRef, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Rental().Derive(owner)
}

// IsPaused reports whether a native module is paused in state.
func (n *Node) IsPaused(module string) bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Manager().IsPaused(module)
}

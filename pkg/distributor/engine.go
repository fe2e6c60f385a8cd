// Package distributor implements the distribution ledger and
// claim-verification engine: a registry of Merkle-committed allocation
// sets, an at-most-once claim verifier, and the accounting that keeps
// claimed amounts within committed supply.
package distributor

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/stonework-labs/merkledrop-go/pkg/custody"
	"github.com/stonework-labs/merkledrop-go/pkg/events"
	"github.com/stonework-labs/merkledrop-go/pkg/ledger"
	"github.com/stonework-labs/merkledrop-go/pkg/merkle"
)

// Engine owns the distribution registry and the claim verifier. All
// state-mutating operations serialize on one mutex: a logical operation
// completes fully before the next begins, so no partial effects are ever
// observable and accounting stays consistent without per-distribution
// locking.
type Engine struct {
	mu sync.Mutex

	store     ledger.Store
	custodian custody.Custodian
	verifier  merkle.Verifier
	sink      events.Sink
	clock     Clock
	logger    *zap.Logger

	// admin is the single identity allowed to run administrative
	// operations. Rotation happens outside the engine.
	admin common.Address

	// custodyAccount is the address at which the engine holds distributable
	// funds with the custodian.
	custodyAccount common.Address
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithVerifier overrides the proof verifier. Production wiring keeps the
// default keccak verifier; simulation harnesses inject permissive ones.
func WithVerifier(verifier merkle.Verifier) Option {
	return func(e *Engine) { e.verifier = verifier }
}

// WithSink overrides the event sink.
func WithSink(sink events.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine over a ledger store and a custodian. The admin
// address authorizes administrative operations; custodyAccount is where the
// engine's distributable funds live with the custodian.
func New(store ledger.Store, custodian custody.Custodian, admin, custodyAccount common.Address, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if custodian == nil {
		return nil, ErrNilCustodian
	}

	e := &Engine{
		store:          store,
		custodian:      custodian,
		verifier:       merkle.Keccak256Verifier{},
		clock:          SystemClock(),
		logger:         zap.NewNop(),
		admin:          admin,
		custodyAccount: custodyAccount,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sink == nil {
		e.sink = events.NewLogSink(e.logger)
	}

	return e, nil
}

// Admin returns the administrative identity.
func (e *Engine) Admin() common.Address {
	return e.admin
}

// CustodyAccount returns the engine's custody address.
func (e *Engine) CustodyAccount() common.Address {
	return e.custodyAccount
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	return nil
}

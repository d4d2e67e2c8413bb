package projector

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dexhub/tokenex/pkg/chain"
	"github.com/dexhub/tokenex/pkg/exchange"
	"github.com/dexhub/tokenex/pkg/token"
)

// BackfillPolicy bounds the historical scan. Ephemeral test chains restart
// from genesis constantly, so only a recent window is scanned; persistent
// networks scan from the known deployment block.
type BackfillPolicy struct {
	Ephemeral       bool
	Window          uint64 // recent blocks to scan when ephemeral
	DeploymentBlock uint64
}

func (p BackfillPolicy) startBlock(head uint64) uint64 {
	if p.Ephemeral {
		if head > p.Window {
			return head - p.Window
		}
		return 0
	}
	return p.DeploymentBlock
}

// Hooks are the session's outward notifications. Both are optional.
type Hooks struct {
	// OnNotify fires once per first-seen order transition and per deduped
	// transfer/faucet event that touches the session account.
	OnNotify func(message string, txHash common.Hash)
	// OnBalanceChange signals that wallet and exchange balances should be
	// refetched.
	OnBalanceChange func()
}

// Session owns one projection lifetime: it is created when the preconditions
// (provider, contracts, account) are met and must be closed when any of them
// change. Subscription registration and teardown are strictly symmetric; a
// backfill still in flight when the session closes becomes a no-op rather
// than dispatching into a torn-down context.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	host    *chain.Chain
	proj    *Projector
	account common.Address
	policy  BackfillPolicy
	hooks   Hooks
	errs    *ErrorSlots
	logger  *zap.Logger

	sub *chain.Subscription

	closeOnce sync.Once
}

const (
	liveBuffer  = 256
	dedupWindow = time.Minute
	dedupMax    = 4096
	errWindow   = 8 * time.Second
)

// NewSession wires a projector to the chain for one account. Call Start to
// begin ingesting and Close to tear everything down.
func NewSession(host *chain.Chain, proj *Projector, account common.Address, policy BackfillPolicy, hooks Hooks, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ctx:     ctx,
		cancel:  cancel,
		host:    host,
		proj:    proj,
		account: account,
		policy:  policy,
		hooks:   hooks,
		errs:    NewErrorSlots(errWindow),
		logger:  logger,
	}
}

// Errors exposes the session's per-domain error slots.
func (s *Session) Errors() *ErrorSlots { return s.errs }

// Start subscribes live first, then backfills the historical window, so no
// event emitted during the backfill is missed; overlap between the two paths
// is absorbed by the projector's idempotent upserts.
func (s *Session) Start() {
	s.sub = s.host.Subscribe(liveBuffer)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.liveLoop()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.backfill()
	}()
}

// Close tears down the live subscription and waits for in-flight work. Safe
// to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.sub != nil {
			s.sub.Close()
		}
		s.wg.Wait()
	})
}

func (s *Session) backfill() {
	head := s.host.Head()
	from := s.policy.startBlock(head)

	var (
		mu   sync.Mutex
		logs []chain.Log
	)
	g, _ := errgroup.WithContext(s.ctx)
	for _, name := range []string{exchange.EvMakeOrder, exchange.EvFillOrder, exchange.EvCancelOrder} {
		g.Go(func() error {
			got := s.host.FilterLogs(name, from, head)
			mu.Lock()
			logs = append(logs, got...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Fail open: the live subscription keeps running and the view stays
		// incomplete until the backfill is retried.
		s.logger.Warn("backfill failed", zap.Error(err))
		s.errs.Set("eventListeners", "Error loading past orders; the view may be incomplete.")
		return
	}

	// Stale-dispatch guard: the session may have closed while we were
	// fetching.
	if s.ctx.Err() != nil {
		return
	}
	for _, l := range logs {
		s.proj.Apply(l)
	}
	s.logger.Info("backfill complete",
		zap.Uint64("from_block", from), zap.Uint64("to_block", head), zap.Int("logs", len(logs)))
}

func (s *Session) liveLoop() {
	transfers := newSeenCache(dedupWindow, dedupMax)

	for {
		select {
		case <-s.ctx.Done():
			return
		case l, ok := <-s.sub.Logs():
			if !ok {
				return
			}
			s.handle(l, transfers)
		}
	}
}

func (s *Session) handle(l chain.Log, transfers *seenCache) {
	switch ev := l.Event.(type) {
	case exchange.MakeOrderEvent:
		if res := s.proj.Apply(l); res.WasAdded {
			s.notifyOrder("Order placed", l, ev.Maker, common.Address{})
		}
	case exchange.FillOrderEvent:
		if res := s.proj.Apply(l); res.WasAdded {
			s.notifyOrder("Order filled", l, ev.Maker, ev.Taker)
		}
	case exchange.CancelOrderEvent:
		if res := s.proj.Apply(l); res.WasAdded {
			s.notifyOrder("Order cancelled", l, ev.Maker, common.Address{})
		}
	case exchange.DepositEvent:
		s.notifyTransfer("Tokens deposited on the exchange", l, ev.User, transfers)
	case exchange.WithdrawEvent:
		s.notifyTransfer("Tokens withdrawn from the exchange", l, ev.User, transfers)
	case token.TokensDistributedEvent:
		s.notifyTransfer("Tokens added to your wallet", l, ev.User, transfers)
	}
}

func (s *Session) notifyOrder(message string, l chain.Log, maker, taker common.Address) {
	s.balanceChanged()
	if s.hooks.OnNotify == nil {
		return
	}
	if maker == s.account || taker == s.account {
		s.hooks.OnNotify(message, l.Meta.TxHash)
	}
}

// notifyTransfer refreshes balances and notifies once per transaction:
// transfer-style events are not projected state, so duplicates are suppressed
// with the bounded seen-cache instead.
func (s *Session) notifyTransfer(message string, l chain.Log, user common.Address, transfers *seenCache) {
	if transfers.Seen(l.Meta.TxHash, time.Now()) {
		return
	}
	s.balanceChanged()
	if s.hooks.OnNotify != nil && user == s.account {
		s.hooks.OnNotify(message, l.Meta.TxHash)
	}
}

func (s *Session) balanceChanged() {
	if s.hooks.OnBalanceChange != nil {
		s.hooks.OnBalanceChange()
	}
}

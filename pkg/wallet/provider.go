package wallet

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ChangeKind distinguishes provider notifications.
type ChangeKind string

const (
	AccountChanged ChangeKind = "accountsChanged"
	ChainChanged   ChangeKind = "chainChanged"
	Disconnected   ChangeKind = "disconnect"
)

// Change is one provider notification. Account/ChainID carry the new values
// for their respective kinds.
type Change struct {
	Kind    ChangeKind
	Account common.Address
	ChainID uint64
}

// Provider models the wallet side of the client: the currently selected
// account and chain, with subscribe/unsubscribe notifications on change.
// Consumers must treat every notification as invalidating their session and
// rebuild projections from scratch.
type Provider struct {
	mu      sync.Mutex
	account common.Address
	chainID uint64
	subs    map[uint64]chan Change
	next    uint64
}

func NewProvider(account common.Address, chainID uint64) *Provider {
	return &Provider{
		account: account,
		chainID: chainID,
		subs:    make(map[uint64]chan Change),
	}
}

func (p *Provider) Account() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account
}

func (p *Provider) ChainID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

// Subscribe registers for change notifications. The returned cancel func must
// be called when the consumer goes away; registration and teardown are
// symmetric by contract.
func (p *Provider) Subscribe(buffer int) (<-chan Change, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := p.next
	ch := make(chan Change, buffer)
	p.subs[id] = ch
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

// SwitchAccount selects a new account and notifies subscribers.
func (p *Provider) SwitchAccount(account common.Address) {
	p.mu.Lock()
	p.account = account
	p.broadcast(Change{Kind: AccountChanged, Account: account, ChainID: p.chainID})
	p.mu.Unlock()
}

// SwitchChain selects a new chain and notifies subscribers.
func (p *Provider) SwitchChain(chainID uint64) {
	p.mu.Lock()
	p.chainID = chainID
	p.broadcast(Change{Kind: ChainChanged, Account: p.account, ChainID: chainID})
	p.mu.Unlock()
}

// Disconnect notifies subscribers that the provider went away.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	p.broadcast(Change{Kind: Disconnected})
	p.mu.Unlock()
}

func (p *Provider) broadcast(c Change) {
	for _, ch := range p.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

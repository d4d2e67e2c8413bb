// Package token implements the ERC-20-style collaborator contract the
// exchange custodies: allowance-gated transfers, owner-only minting and a
// rate-limited faucet for demo distribution.
package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dexhub/tokenex/pkg/chain"
)

// Event names.
const (
	EvTransfer          = "Transfer"
	EvApproval          = "Approval"
	EvTokensDistributed = "TokensDistributed"
)

// TransferEvent is emitted on transfer, transferFrom and mint (from = zero address).
type TransferEvent struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func (TransferEvent) Name() string { return EvTransfer }

// ApprovalEvent is emitted when an owner sets a spender allowance.
type ApprovalEvent struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

func (ApprovalEvent) Name() string { return EvApproval }

// TokensDistributedEvent is emitted by the faucet.
type TokensDistributedEvent struct {
	Token  common.Address
	User   common.Address
	Amount *big.Int
}

func (TokensDistributedEvent) Name() string { return EvTokensDistributed }

// InsufficientAllowanceError mirrors ERC20InsufficientAllowance.
type InsufficientAllowanceError struct {
	Spender   common.Address
	Allowance *big.Int
	Needed    *big.Int
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient allowance: spender=%s allowance=%s needed=%s", e.Spender.Hex(), e.Allowance, e.Needed)
}

// InsufficientBalanceError mirrors ERC20InsufficientBalance.
type InsufficientBalanceError struct {
	Sender  common.Address
	Balance *big.Int
	Needed  *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient token balance: sender=%s balance=%s needed=%s", e.Sender.Hex(), e.Balance, e.Needed)
}

// UnauthorizedOwnerError is returned for owner-only calls from other accounts.
type UnauthorizedOwnerError struct {
	Caller common.Address
}

func (e *UnauthorizedOwnerError) Error() string {
	return fmt.Sprintf("caller is not the owner: %s", e.Caller.Hex())
}

// FaucetLimitError is returned when an account exceeds the faucet daily limit.
type FaucetLimitError struct {
	User      common.Address
	NextClaim int64 // unix seconds
}

func (e *FaucetLimitError) Error() string {
	return fmt.Sprintf("faucet daily limit reached: user=%s next claim at %d", e.User.Hex(), e.NextClaim)
}

const faucetCooldown = 24 * 60 * 60 // seconds

// Token is an in-process fungible token contract. Mutations run inside chain
// transactions, but balances and allowances are also read by concurrent HTTP
// handlers, so mu guards the mutable state.
type Token struct {
	address  common.Address
	name     string
	symbol   string
	decimals uint8

	mu    sync.RWMutex
	owner common.Address

	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int

	faucetDailyLimit *big.Int
	lastClaim        map[common.Address]int64

	// test hook mirroring a misbehaving ERC-20 whose transfers fail
	failTransfers bool
}

// New deploys a token, minting initialSupply (in smallest units) to recipient.
// The contract address is derived from the symbol so deployments are stable
// across restarts.
func New(name, symbol string, recipient, owner common.Address, initialSupply, faucetDailyLimit *big.Int) *Token {
	t := &Token{
		address:          common.BytesToAddress(crypto.Keccak256([]byte("token:" + symbol))[:20]),
		name:             name,
		symbol:           symbol,
		decimals:         18,
		owner:            owner,
		totalSupply:      new(big.Int).Set(initialSupply),
		balances:         make(map[common.Address]*big.Int),
		allowances:       make(map[common.Address]map[common.Address]*big.Int),
		faucetDailyLimit: new(big.Int).Set(faucetDailyLimit),
		lastClaim:        make(map[common.Address]int64),
	}
	t.balances[recipient] = new(big.Int).Set(initialSupply)
	return t
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) TokenName() string       { return t.name }
func (t *Token) Decimals() uint8         { return t.decimals }

func (t *Token) Owner() common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.owner
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

func (t *Token) BalanceOf(user common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceOf(user)
}

func (t *Token) balanceOf(user common.Address) *big.Int {
	if bal, ok := t.balances[user]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowance(owner, spender)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if spenders, ok := t.allowances[owner]; ok {
		if a, ok := spenders[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

func (t *Token) GetFaucetDailyLimit() *big.Int { return new(big.Int).Set(t.faucetDailyLimit) }

// SetFailTransfers makes every transfer fail, for exercising the exchange's
// transfer-failure paths in tests.
func (t *Token) SetFailTransfers(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failTransfers = fail
}

// Approve sets caller's allowance for spender.
func (t *Token) Approve(tx *chain.Tx, caller, spender common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	spenders, ok := t.allowances[caller]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		t.allowances[caller] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
	tx.Emit(ApprovalEvent{Token: t.address, Owner: caller, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from caller to recipient.
func (t *Token) Transfer(tx *chain.Tx, caller, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTransfers {
		return fmt.Errorf("transfer disabled: token=%s", t.address.Hex())
	}
	return t.move(tx, caller, to, amount)
}

// TransferFrom moves amount from `from` to `to`, consuming the caller's
// allowance. The allowance check precedes any mutation.
func (t *Token) TransferFrom(tx *chain.Tx, caller, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTransfers {
		return fmt.Errorf("transfer disabled: token=%s", t.address.Hex())
	}
	allowance := t.allowance(from, caller)
	if allowance.Cmp(amount) < 0 {
		return &InsufficientAllowanceError{Spender: caller, Allowance: allowance, Needed: new(big.Int).Set(amount)}
	}
	if err := t.move(tx, from, to, amount); err != nil {
		return err
	}
	t.allowances[from][caller] = allowance.Sub(allowance, amount)
	return nil
}

// Mint creates amount new tokens for `to`. Owner only.
func (t *Token) Mint(tx *chain.Tx, caller, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner || t.owner == (common.Address{}) {
		return &UnauthorizedOwnerError{Caller: caller}
	}
	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	tx.Emit(TransferEvent{Token: t.address, From: common.Address{}, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// TransferOwnership hands owner-only rights to newOwner. Passing the zero
// address renounces ownership and disables minting permanently.
func (t *Token) TransferOwnership(caller, newOwner common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner || t.owner == (common.Address{}) {
		return &UnauthorizedOwnerError{Caller: caller}
	}
	t.owner = newOwner
	return nil
}

// GetTokens mints the faucet daily limit to the caller, at most once per
// 24 hours per account.
func (t *Token) GetTokens(tx *chain.Tx, caller common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastClaim[caller]
	now := tx.Timestamp()
	if ok && now-last < faucetCooldown {
		return &FaucetLimitError{User: caller, NextClaim: last + faucetCooldown}
	}
	t.lastClaim[caller] = now
	t.credit(caller, t.faucetDailyLimit)
	t.totalSupply.Add(t.totalSupply, t.faucetDailyLimit)
	tx.Emit(TokensDistributedEvent{Token: t.address, User: caller, Amount: new(big.Int).Set(t.faucetDailyLimit)})
	return nil
}

// move runs under the caller-held write lock.
func (t *Token) move(tx *chain.Tx, from, to common.Address, amount *big.Int) error {
	bal := t.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return &InsufficientBalanceError{Sender: from, Balance: bal, Needed: new(big.Int).Set(amount)}
	}
	t.balances[from] = bal.Sub(bal, amount)
	t.credit(to, amount)
	tx.Emit(TransferEvent{Token: t.address, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func (t *Token) credit(to common.Address, amount *big.Int) {
	bal, ok := t.balances[to]
	if !ok {
		bal = new(big.Int)
		t.balances[to] = bal
	}
	bal.Add(bal, amount)
}

package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger holds custodial balances keyed by (token, user). Amounts are in the
// token's smallest unit and never go negative: debit fails before mutating.
// The ledger has no locking of its own; the Exchange's mutex guards access.
type Ledger struct {
	balances map[common.Address]map[common.Address]*big.Int // token → user → amount
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// BalanceOf returns a copy of the current balance (zero if unseen).
func (l *Ledger) BalanceOf(token, user common.Address) *big.Int {
	if users, ok := l.balances[token]; ok {
		if bal, ok := users[user]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}

// Credit adds amount to balance[token][user] and returns the new balance.
func (l *Ledger) Credit(token, user common.Address, amount *big.Int) *big.Int {
	users, ok := l.balances[token]
	if !ok {
		users = make(map[common.Address]*big.Int)
		l.balances[token] = users
	}
	bal, ok := users[user]
	if !ok {
		bal = new(big.Int)
		users[user] = bal
	}
	bal.Add(bal, amount)
	return new(big.Int).Set(bal)
}

// Debit subtracts amount from balance[token][user]. It fails without any
// effect if the balance would go negative.
func (l *Ledger) Debit(token, user common.Address, amount *big.Int) (*big.Int, error) {
	users, ok := l.balances[token]
	if !ok {
		return nil, fmt.Errorf("debit underflow: token=%s user=%s balance=0 amount=%s", token.Hex(), user.Hex(), amount)
	}
	bal, ok := users[user]
	if !ok || bal.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have.Set(bal)
		}
		return nil, fmt.Errorf("debit underflow: token=%s user=%s balance=%s amount=%s", token.Hex(), user.Hex(), have, amount)
	}
	bal.Sub(bal, amount)
	return new(big.Int).Set(bal), nil
}

// Entries returns a flat snapshot of all non-zero balances, for persistence.
func (l *Ledger) Entries() []BalanceEntry {
	var out []BalanceEntry
	for token, users := range l.balances {
		for user, bal := range users {
			if bal.Sign() == 0 {
				continue
			}
			out = append(out, BalanceEntry{Token: token, User: user, Amount: new(big.Int).Set(bal)})
		}
	}
	return out
}

// Restore replaces the ledger contents with the given entries.
func (l *Ledger) Restore(entries []BalanceEntry) {
	l.balances = make(map[common.Address]map[common.Address]*big.Int)
	for _, e := range entries {
		l.Credit(e.Token, e.User, e.Amount)
	}
}

// BalanceEntry is one (token, user) balance, used for snapshots.
type BalanceEntry struct {
	Token  common.Address
	User   common.Address
	Amount *big.Int
}

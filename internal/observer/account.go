package observer

import (
	"context"
	"fmt"

	"github.com/withinboredom/open-handshake/internal/exchange"
)

// Account polls the exchange account and reports balance movements. The
// first poll primes the baseline and emits nothing.
type Account struct {
	gateway exchange.Gateway
	primed  bool
	last    exchange.Account
}

func NewAccount(gw exchange.Gateway) *Account {
	return &Account{gateway: gw}
}

// Last returns the most recent account snapshot.
func (a *Account) Last() exchange.Account {
	return a.last
}

// Refresh fetches the account and emits a BalanceChanged per asset whose
// total moved.
func (a *Account) Refresh(ctx context.Context) ([]Event, error) {
	account, err := a.gateway.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing account: %w", err)
	}

	var events []Event
	if a.primed {
		for _, pair := range [][2]exchange.Balance{
			{a.last.Base, account.Base},
			{a.last.Quote, account.Quote},
		} {
			prev, next := pair[0], pair[1]
			if prev.Total() != next.Total() {
				events = append(events, BalanceChanged{
					Asset:    next.Asset,
					Previous: prev.Total(),
					New:      next.Total(),
				})
			}
		}
	}

	a.last = account
	a.primed = true
	return events, nil
}

package main

import (
	"context"
	"strings"
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// resolveID expands a unique id prefix, as printed by the list commands.
// An exact or unmatched arg is returned unchanged so the lookup that
// follows reports the error.
func resolveID(arg string, ids []string) string {
	var match string
	for _, id := range ids {
		if id == arg {
			return id
		}
		if strings.HasPrefix(id, arg) {
			if match != "" {
				fatalf("id prefix %q is ambiguous", arg)
			}
			match = id
		}
	}
	if match == "" {
		return arg
	}
	return match
}

func resolveAccountID(ctx context.Context, a *app, arg string) string {
	accounts, err := a.book.Accounts(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	ids := make([]string, len(accounts))
	for i, acc := range accounts {
		ids[i] = acc.ID
	}
	return resolveID(arg, ids)
}

func resolveTransactionID(ctx context.Context, a *app, arg string) string {
	txs, err := a.book.Transactions(ctx, "")
	if err != nil {
		fatalf("%v", err)
	}
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return resolveID(arg, ids)
}

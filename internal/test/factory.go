// Package test provides deterministic fixtures for the aggregation tests:
// generated user entries and the semicolon-delimited CSV files the
// orchestrator consumes.
package test

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/holiman/uint256"

	"github.com/summa-dev/summa-aggregation/mst"
)

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateEntries produces count entries with numCurrencies random balances
// each, deterministic for a given seed.
func GenerateEntries(count, numCurrencies int, seed int64) []mst.Entry {
	rng := rand.New(rand.NewSource(seed))
	entries := make([]mst.Entry, count)
	for i := range entries {
		balances := make([]*uint256.Int, numCurrencies)
		for j := range balances {
			balances[j] = uint256.NewInt(uint64(rng.Intn(1_000_000)))
		}
		entry, err := mst.NewEntry(randomUsername(rng), balances)
		if err != nil {
			panic(err)
		}
		entries[i] = entry
	}
	return entries
}

// GenerateUniformEntries produces count entries that all carry the same
// balance in every currency, handy for driving sums to an exact bound.
func GenerateUniformEntries(count, numCurrencies int, balance uint64) []mst.Entry {
	entries := make([]mst.Entry, count)
	for i := range entries {
		balances := make([]*uint256.Int, numCurrencies)
		for j := range balances {
			balances[j] = uint256.NewInt(balance)
		}
		entry, err := mst.NewEntry(fmt.Sprintf("user_%04d", i), balances)
		if err != nil {
			panic(err)
		}
		entries[i] = entry
	}
	return entries
}

func randomUsername(rng *rand.Rand) string {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteByte(usernameAlphabet[rng.Intn(len(usernameAlphabet))])
	}
	return sb.String()
}

// WriteEntryCSV writes entries as a `;`-delimited CSV under dir and returns
// the file path.
func WriteEntryCSV(dir, name string, entries []mst.Entry) string {
	var sb strings.Builder
	sb.WriteString("username;balances\n")
	for _, entry := range entries {
		balances := make([]string, entry.NumCurrencies())
		for i, balance := range entry.Balances() {
			balances[i] = balance.Dec()
		}
		sb.WriteString(entry.Username())
		sb.WriteByte(';')
		sb.WriteString(strings.Join(balances, ","))
		sb.WriteByte('\n')
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		panic(err)
	}
	return path
}

// Package minitree implements the mini tree worker: a stateless HTTP
// service that builds one Merkle sum subtree per request. The orchestrator
// posts a JSON batch of user entries and receives the full subtree,
// serialized layer by layer, in return.
package minitree

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/summa-dev/summa-aggregation/jsonmst"
	"github.com/summa-dev/summa-aggregation/mst"
)

const (
	// DefaultNumCurrencies is the currency count assumed when none is
	// configured.
	DefaultNumCurrencies = 2
	// DefaultNumBytes is the balance byte range assumed when none is
	// configured.
	DefaultNumBytes = 14
)

// Config carries the build parameters of the worker.
type Config struct {
	// NumCurrencies is the number of balances every entry must carry.
	NumCurrencies int
	// NumBytes is the byte range every balance must fit in.
	NumBytes int
}

// ConfigFromEnv reads the worker parameters from the N_CURRENCIES and
// N_BYTES environment variables, falling back to the defaults.
func ConfigFromEnv() Config {
	return Config{
		NumCurrencies: intFromEnv("N_CURRENCIES", DefaultNumCurrencies),
		NumBytes:      intFromEnv("N_BYTES", DefaultNumBytes),
	}
}

func intFromEnv(key string, fallback int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return fallback
}

// Handler serves POST / by building a Merkle sum tree over the posted
// entries. The handler keeps no state between requests; concurrent requests
// build their trees independently.
type Handler struct {
	cfg Config
	log log.Logger
}

// NewHandler creates a worker handler with the given build parameters.
func NewHandler(cfg Config) *Handler {
	if cfg.NumCurrencies <= 0 {
		cfg.NumCurrencies = DefaultNumCurrencies
	}
	if cfg.NumBytes <= 0 {
		cfg.NumBytes = DefaultNumBytes
	}
	return &Handler{cfg: cfg, log: log.New("module", "mini-tree")}
}

// errorResponse is the JSON body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}

	var jsonEntries []jsonmst.Entry
	if err := json.NewDecoder(r.Body).Decode(&jsonEntries); err != nil {
		writeError(w, http.StatusBadRequest, "decoding entries: "+err.Error())
		return
	}
	if len(jsonEntries) == 0 {
		writeError(w, http.StatusBadRequest, "no entries in request")
		return
	}

	entries, err := jsonmst.ToEntries(jsonEntries)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, entry := range entries {
		if entry.NumCurrencies() != h.cfg.NumCurrencies {
			writeError(w, http.StatusBadRequest,
				"entry "+entry.Username()+" has "+strconv.Itoa(entry.NumCurrencies())+
					" balances, expected "+strconv.Itoa(h.cfg.NumCurrencies))
			return
		}
	}

	started := time.Now()
	tree, err := mst.FromEntries(entries, mst.DummyCryptocurrencies(h.cfg.NumCurrencies), h.cfg.NumBytes, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building tree: "+err.Error())
		return
	}
	h.log.Info("built mini tree", "entries", len(entries), "depth", tree.Depth(), "elapsed", time.Since(started))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(jsonmst.FromTree(tree)); err != nil {
		h.log.Error("encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

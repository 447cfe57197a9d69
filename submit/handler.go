// Package submit accepts signed transactions over HTTP, validates them
// against the materialized UTXO set, forwards them to the bridge, and
// records them as pending.
package submit

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/blinklabs-community/byron-importer/bridge"
	"github.com/blinklabs-community/byron-importer/codec"
	"github.com/blinklabs-community/byron-importer/metrics"
	"github.com/blinklabs-community/byron-importer/store"
)

// Handler implements POST /api/txs/signed.
type Handler struct {
	store        *store.Store
	bridge       *bridge.Client
	networkMagic int32
}

// New builds a Handler validating submitted txs against st and forwarding
// them through bc, rejecting any output whose network-magic attribute does
// not match networkMagic.
func New(st *store.Store, bc *bridge.Client, networkMagic int32) *Handler {
	return &Handler{store: st, bridge: bc, networkMagic: networkMagic}
}

// RegisterRoutes wires the submit endpoint into mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/txs/signed", h.handleSubmit)
}

type submitRequest struct {
	SignedTx string `json:"signedTx"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.SubmitRequests.WithLabelValues("bad_request").Inc()
		writeResponse(w, http.StatusBadRequest, false, fmt.Sprintf("decode request: %v", err))
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.SignedTx)
	if err != nil {
		metrics.SubmitRequests.WithLabelValues("bad_request").Inc()
		writeResponse(w, http.StatusBadRequest, false, fmt.Sprintf("base64 decode signedTx: %v", err))
		return
	}

	tx, err := codec.DecodeSignedTx(payload)
	if err != nil {
		metrics.SubmitRequests.WithLabelValues("bad_request").Inc()
		writeResponse(w, http.StatusBadRequest, false, fmt.Sprintf("decode tx: %v", err))
		return
	}

	if err := h.validate(r.Context(), tx); err != nil {
		log.Printf("[submit] local validation failed for %s: %v", tx.Id, err)
		status, body, submitErr := h.bridge.SubmitSigned(r.Context(), payload)
		if submitErr == nil && status >= 200 && status < 300 {
			log.Printf("[submit] %s failed local validation but bridge accepted it: %v", tx.Id, err)
			h.persistPending(tx)
			metrics.SubmitRequests.WithLabelValues("accepted_despite_validation_error").Inc()
			writeResponse(w, http.StatusOK, true, "accepted by bridge")
			return
		}
		metrics.SubmitRequests.WithLabelValues("validation_error").Inc()
		writeResponse(w, http.StatusBadRequest, false, fmt.Sprintf("local validation: %v; bridge: status=%d body=%s err=%v", err, status, body, submitErr))
		return
	}

	status, body, err := h.bridge.SubmitSigned(r.Context(), payload)
	if err != nil {
		metrics.SubmitRequests.WithLabelValues("bridge_unavailable").Inc()
		writeResponse(w, http.StatusBadRequest, false, fmt.Sprintf("submit to bridge: %v", err))
		return
	}
	if status < 200 || status >= 300 {
		metrics.SubmitRequests.WithLabelValues("bridge_rejected").Inc()
		writeResponse(w, http.StatusBadRequest, false, fmt.Sprintf("bridge rejected tx: status=%d body=%s", status, body))
		return
	}

	h.persistPending(tx)
	metrics.SubmitRequests.WithLabelValues("accepted").Inc()
	writeResponse(w, http.StatusOK, true, "submitted")
}

func (h *Handler) persistPending(tx *codec.Tx) {
	addresses := make([]string, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		addresses = append(addresses, out.Address)
	}
	rec := store.TxRecord{
		Hash:      tx.Id,
		State:     store.TxPending,
		TxBody:    tx.TxBody,
		Witnesses: tx.Witnesses,
		Addresses: addresses,
	}
	if err := h.store.SaveTx(rec, time.Now()); err != nil {
		log.Printf("[submit] persist pending tx %s: %v", tx.Id, err)
	}
}

// validate runs the witness check and the network-magic check from
// spec.md §4.6 against a freshly decoded tx.
func (h *Handler) validate(ctx context.Context, tx *codec.Tx) error {
	if err := h.checkWitnesses(tx); err != nil {
		return err
	}
	return h.checkNetworkMagic(tx)
}

func writeResponse(w http.ResponseWriter, status int, success bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(submitResponse{Success: success, Message: message})
}

// checkWitnesses requires every regular (type 0) input's witness to sign
// for the address root that actually owns the UTXO it spends.
func (h *Handler) checkWitnesses(tx *codec.Tx) error {
	if len(tx.Inputs) == 0 {
		return nil
	}
	pubKeys, err := codec.DecodeWitnessPubKeys(tx.Witnesses)
	if err != nil {
		return fmt.Errorf("decode witnesses: %w", err)
	}
	if len(tx.Inputs) != len(pubKeys) {
		return fmt.Errorf("input/witness count mismatch: %d inputs, %d witnesses", len(tx.Inputs), len(pubKeys))
	}

	ids := make([]string, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		ids = append(ids, codec.UtxoId(in.TxId, in.Index))
	}
	utxos, err := h.store.GetUtxosByIds(ids)
	if err != nil {
		return fmt.Errorf("resolve input utxos: %w", err)
	}
	addressByID := make(map[string]string, len(utxos))
	for _, u := range utxos {
		addressByID[u.Id] = u.Address
	}

	for i, in := range tx.Inputs {
		if in.Type != 0 {
			continue
		}
		address, ok := addressByID[codec.UtxoId(in.TxId, in.Index)]
		if !ok {
			return fmt.Errorf("input %d: unknown utxo %s", i, codec.UtxoId(in.TxId, in.Index))
		}

		wrapped, err := codec.DecodeWrappedAddress(address)
		if err != nil {
			return fmt.Errorf("input %d: deconstruct address: %w", i, err)
		}
		if wrapped.Type != 0 {
			continue
		}

		structure := []any{0, []any{0, pubKeys[i]}, wrapped.Attrs}
		encoded, err := codec.CanonicalMarshal(structure)
		if err != nil {
			return fmt.Errorf("input %d: encode witness structure: %w", i, err)
		}
		sha3Sum := sha3.Sum256(encoded)
		expectedRoot := blake2b224(sha3Sum[:])

		if !bytesEqual(expectedRoot, wrapped.Root) {
			return fmt.Errorf("input %d: witness does not match address root", i)
		}
	}
	return nil
}

// checkNetworkMagic requires every output's address to carry the
// configured network-magic attribute.
func (h *Handler) checkNetworkMagic(tx *codec.Tx) error {
	for i, out := range tx.Outputs {
		wrapped, err := codec.DecodeWrappedAddress(out.Address)
		if err != nil {
			return fmt.Errorf("output %d: deconstruct address: %w", i, err)
		}
		rawMagic, ok := wrapped.Attrs[uint64(2)]
		if !ok {
			return fmt.Errorf("output %d: missing network-magic attribute", i)
		}
		magicBytes, ok := rawMagic.([]byte)
		if !ok || len(magicBytes) < 5 {
			return fmt.Errorf("output %d: malformed network-magic attribute", i)
		}
		magic := int32(binary.BigEndian.Uint32(magicBytes[1:5]))
		if magic != h.networkMagic {
			return fmt.Errorf("output %d: network magic %d does not match configured %d", i, magic, h.networkMagic)
		}
	}
	return nil
}

func blake2b224(b []byte) []byte {
	h, err := blake2b.New(28, nil)
	if err != nil {
		panic(fmt.Sprintf("submit: build blake2b-224: %v", err))
	}
	h.Write(b)
	return h.Sum(nil)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

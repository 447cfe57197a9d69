package codec

import "strconv"

// UtxoId forms the store's UTXO primary key: the owning tx's hex id followed
// immediately by its output index, with no delimiter between them (spec.md
// §9 Open Question: the id must survive round-tripping without assuming any
// particular separator, since tx ids are fixed-length hex already).
func UtxoId(txId string, index uint32) string {
	return txId + strconv.FormatUint(uint64(index), 10)
}

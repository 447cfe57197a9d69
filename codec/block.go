package codec

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Byron wire-format block type tags (spec.md §4.1).
const (
	BlockTypeEBB uint64 = 0
	BlockTypeMain uint64 = 1
)

const (
	slotsPerEpoch  = 21600
	slotDurationMs = 20 * time.Second
)

// Block is the structured form of a decoded Byron block, per spec.md §3.
type Block struct {
	Hash     string // lowercase hex, Blake2b-256 of [type, header]
	PrevHash string
	Epoch    uint64
	Slot     *uint64 // nil for EBB blocks
	Height   uint64  // chain difficulty
	IsEBB    bool
	Time     time.Time // zero value for EBB blocks
	Txs      []*Tx
}

// Input is a transaction input resolved to a spent output reference.
type Input struct {
	Type  uint64
	TxId  string // hex
	Index uint32
}

// Output is a transaction output: a destination address and amount.
type Output struct {
	Address string // base58(CBOR(address))
	Amount  *big.Int
}

// Tx is the structured form of a decoded Byron transaction, per spec.md §3.
type Tx struct {
	Id        string // hex, Blake2b-256 canonical tx-id hash
	Inputs    []Input
	Outputs   []Output
	Witnesses string // hex of the canonical CBOR witnesses array, "" if bare
	TxBody    string // hex of canonical CBOR [inputs, outputs, attributes]
}

// DecodeBlock decodes a raw block blob from the bridge into a structured
// Block. networkStartTime is the network's genesis Unix time, used to
// derive a regular block's wall-clock time from (epoch, slot).
func DecodeBlock(raw []byte, networkStartTime int64) (*Block, error) {
	top, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	typeVal, err := arrayElem(top, 0)
	if err != nil {
		return nil, fmt.Errorf("block type: %w", err)
	}
	blockType, err := asUint64(typeVal)
	if err != nil {
		return nil, fmt.Errorf("block type: %w", err)
	}
	bodyTop, err := arrayElem(top, 1)
	if err != nil {
		return nil, fmt.Errorf("block payload: %w", err)
	}
	header, err := arrayElem(bodyTop, 0)
	if err != nil {
		return nil, fmt.Errorf("block header: %w", err)
	}

	hash, err := hashBlockHeader(blockType, header)
	if err != nil {
		return nil, err
	}
	prevHash, err := decodeBlockPrevHash(header)
	if err != nil {
		return nil, err
	}
	consensus, err := arrayElem(header, 3)
	if err != nil {
		return nil, fmt.Errorf("block consensus data: %w", err)
	}

	switch blockType {
	case BlockTypeEBB:
		epoch, height, err := decodeEBBConsensus(consensus)
		if err != nil {
			return nil, err
		}
		return &Block{
			Hash:     hash,
			PrevHash: prevHash,
			Epoch:    epoch,
			Slot:     nil,
			Height:   height,
			IsEBB:    true,
		}, nil
	case BlockTypeMain:
		epoch, slot, height, err := decodeMainConsensus(consensus)
		if err != nil {
			return nil, err
		}
		body, err := arrayElem(bodyTop, 1)
		if err != nil {
			return nil, fmt.Errorf("block body: %w", err)
		}
		txList, err := arrayElem(body, 0)
		if err != nil {
			return nil, fmt.Errorf("block tx payload: %w", err)
		}
		txArr, err := asArray(txList)
		if err != nil {
			return nil, fmt.Errorf("block tx payload: %w", err)
		}
		txs := make([]*Tx, 0, len(txArr))
		for i, raw := range txArr {
			tx, err := decodeTxAux(raw)
			if err != nil {
				return nil, fmt.Errorf("block tx %d: %w", i, err)
			}
			txs = append(txs, tx)
		}
		blockTime := time.Unix(networkStartTime, 0).Add(
			time.Duration(epoch*slotsPerEpoch+slot) * slotDurationMs,
		)
		return &Block{
			Hash:     hash,
			PrevHash: prevHash,
			Epoch:    epoch,
			Slot:     &slot,
			Height:   height,
			IsEBB:    false,
			Time:     blockTime,
			Txs:      txs,
		}, nil
	default:
		return nil, fmt.Errorf("unknown block type %d", blockType)
	}
}

// hashBlockHeader computes Blake2b-256(CBOR([type, header])) as lowercase hex.
func hashBlockHeader(blockType uint64, header any) (string, error) {
	encoded, err := canonicalMarshal([]any{blockType, header})
	if err != nil {
		return "", fmt.Errorf("encode block header for hash: %w", err)
	}
	sum := blake2b.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// decodeBlockPrevHash extracts header[1], the previous block's hash bytes.
func decodeBlockPrevHash(header any) (string, error) {
	prevVal, err := arrayElem(header, 1)
	if err != nil {
		return "", fmt.Errorf("block prev hash: %w", err)
	}
	prev, err := asBytes(prevVal)
	if err != nil {
		return "", fmt.Errorf("block prev hash: %w", err)
	}
	return hex.EncodeToString(prev), nil
}

// decodeEBBConsensus reads an epoch-boundary block's consensus data:
// [epochId, chainDifficulty].
func decodeEBBConsensus(consensus any) (epoch uint64, height uint64, err error) {
	epochVal, err := arrayElem(consensus, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("ebb consensus epoch: %w", err)
	}
	epoch, err = asUint64(epochVal)
	if err != nil {
		return 0, 0, fmt.Errorf("ebb consensus epoch: %w", err)
	}
	diffVal, err := arrayElem(consensus, 1)
	if err != nil {
		return 0, 0, fmt.Errorf("ebb consensus difficulty: %w", err)
	}
	height, err = decodeChainDifficulty(diffVal)
	if err != nil {
		return 0, 0, err
	}
	return epoch, height, nil
}

// decodeMainConsensus reads a regular block's consensus data:
// [slotId, leaderKey, chainDifficulty, signature] where slotId = [epoch, slot].
func decodeMainConsensus(consensus any) (epoch uint64, slot uint64, height uint64, err error) {
	slotIdVal, err := arrayElem(consensus, 0)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("main consensus slot id: %w", err)
	}
	epochVal, err := arrayElem(slotIdVal, 0)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("main consensus epoch: %w", err)
	}
	epoch, err = asUint64(epochVal)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("main consensus epoch: %w", err)
	}
	slotVal, err := arrayElem(slotIdVal, 1)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("main consensus slot: %w", err)
	}
	slot, err = asUint64(slotVal)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("main consensus slot: %w", err)
	}
	diffVal, err := arrayElem(consensus, 2)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("main consensus difficulty: %w", err)
	}
	height, err = decodeChainDifficulty(diffVal)
	if err != nil {
		return 0, 0, 0, err
	}
	return epoch, slot, height, nil
}

// decodeChainDifficulty unwraps ChainDifficulty, which legacy encoders emit
// either as a bare uint or as a single-element array wrapping one.
func decodeChainDifficulty(v any) (uint64, error) {
	if arr, ok := v.([]any); ok {
		if len(arr) != 1 {
			return 0, fmt.Errorf("chain difficulty: unexpected array length %d", len(arr))
		}
		return asUint64(arr[0])
	}
	return asUint64(v)
}

// decodeTxAux decodes one block tx-payload entry: [[inputs,outputs,attrs], witnesses].
func decodeTxAux(raw any) (*Tx, error) {
	txVal, err := arrayElem(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("tx aux body: %w", err)
	}
	witVal, err := arrayElem(raw, 1)
	if err != nil {
		return nil, fmt.Errorf("tx aux witnesses: %w", err)
	}
	return decodeTxWithWitnesses(txVal, witVal)
}

// DecodeSignedTx decodes a standalone signed tx (submit path):
// [[inputs,outputs,attrs], witnesses].
func DecodeSignedTx(raw []byte) (*Tx, error) {
	top, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("decode signed tx: %w", err)
	}
	return decodeTxAux(top)
}

// decodeTxWithWitnesses computes the tx-id, then builds the structured
// Input/Output slices from the same raw decoded values used for hashing.
func decodeTxWithWitnesses(txVal any, witVal any) (*Tx, error) {
	inputsVal, err := arrayElem(txVal, 0)
	if err != nil {
		return nil, fmt.Errorf("tx inputs: %w", err)
	}
	outputsVal, err := arrayElem(txVal, 1)
	if err != nil {
		return nil, fmt.Errorf("tx outputs: %w", err)
	}
	attrsVal, err := arrayElem(txVal, 2)
	if err != nil {
		return nil, fmt.Errorf("tx attributes: %w", err)
	}
	inputsRaw, err := asArray(inputsVal)
	if err != nil {
		return nil, fmt.Errorf("tx inputs: %w", err)
	}
	outputsRaw, err := asArray(outputsVal)
	if err != nil {
		return nil, fmt.Errorf("tx outputs: %w", err)
	}

	txId, err := computeTxId(inputsRaw, outputsRaw, attrsVal)
	if err != nil {
		return nil, err
	}

	inputs := make([]Input, 0, len(inputsRaw))
	for i, raw := range inputsRaw {
		in, err := decodeInput(raw)
		if err != nil {
			return nil, fmt.Errorf("tx input %d: %w", i, err)
		}
		inputs = append(inputs, *in)
	}
	outputs := make([]Output, 0, len(outputsRaw))
	for i, raw := range outputsRaw {
		out, err := decodeOutput(raw)
		if err != nil {
			return nil, fmt.Errorf("tx output %d: %w", i, err)
		}
		outputs = append(outputs, *out)
	}

	bodyBytes, err := canonicalMarshal([]any{inputsVal, outputsVal, attrsVal})
	if err != nil {
		return nil, fmt.Errorf("encode tx body: %w", err)
	}

	var witnessHex string
	if witVal != nil {
		witBytes, err := canonicalMarshal(witVal)
		if err != nil {
			return nil, fmt.Errorf("encode tx witnesses: %w", err)
		}
		witnessHex = hex.EncodeToString(witBytes)
	}

	return &Tx{
		Id:        txId,
		Inputs:    inputs,
		Outputs:   outputs,
		Witnesses: witnessHex,
		TxBody:    hex.EncodeToString(bodyBytes),
	}, nil
}

// computeTxId is the critical interop contract from spec.md §4.1:
// Blake2b-256(CBOR([ indefArray(inputs), indefArray(outputs), attributes ])).
func computeTxId(inputsRaw, outputsRaw []any, attrsVal any) (string, error) {
	indefInputs, err := indefiniteArray(inputsRaw)
	if err != nil {
		return "", fmt.Errorf("tx id: %w", err)
	}
	indefOutputs, err := indefiniteArray(outputsRaw)
	if err != nil {
		return "", fmt.Errorf("tx id: %w", err)
	}
	encoded, err := canonicalMarshal([]any{indefInputs, indefOutputs, attrsVal})
	if err != nil {
		return "", fmt.Errorf("tx id: %w", err)
	}
	sum := blake2b.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// decodeInput decodes one [type, tagged] input, where tagged unwraps to
// [inputTxId(32 bytes), idx].
func decodeInput(raw any) (*Input, error) {
	typeVal, err := arrayElem(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("input type: %w", err)
	}
	inputType, err := asUint64(typeVal)
	if err != nil {
		return nil, fmt.Errorf("input type: %w", err)
	}
	taggedVal, err := arrayElem(raw, 1)
	if err != nil {
		return nil, fmt.Errorf("input tagged value: %w", err)
	}
	tag, err := asTag(taggedVal)
	if err != nil {
		return nil, fmt.Errorf("input tagged value: %w", err)
	}
	inner, err := decodeTagContent(tag)
	if err != nil {
		return nil, fmt.Errorf("input tagged value: %w", err)
	}
	txIdVal, err := arrayElem(inner, 0)
	if err != nil {
		return nil, fmt.Errorf("input tx id: %w", err)
	}
	txIdBytes, err := asBytes(txIdVal)
	if err != nil {
		return nil, fmt.Errorf("input tx id: %w", err)
	}
	idxVal, err := arrayElem(inner, 1)
	if err != nil {
		return nil, fmt.Errorf("input index: %w", err)
	}
	idx, err := asUint64(idxVal)
	if err != nil {
		return nil, fmt.Errorf("input index: %w", err)
	}
	return &Input{
		Type:  inputType,
		TxId:  hex.EncodeToString(txIdBytes),
		Index: uint32(idx),
	}, nil
}

// decodeTagContent resolves a cbor.Tag's content to a decoded value,
// unwrapping the case where Content is a raw byte string holding nested CBOR.
func decodeTagContent(tag cbor.Tag) (any, error) {
	switch content := tag.Content.(type) {
	case []byte:
		return decodeAny(content)
	default:
		return content, nil
	}
}

// decodeOutput decodes one [address, value] output. address is re-encoded
// to its canonical base58(CBOR(...)) string form, matching the on-chain
// representation.
func decodeOutput(raw any) (*Output, error) {
	addrVal, err := arrayElem(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("output address: %w", err)
	}
	addrBytes, err := canonicalMarshal(addrVal)
	if err != nil {
		return nil, fmt.Errorf("output address: %w", err)
	}
	valueVal, err := arrayElem(raw, 1)
	if err != nil {
		return nil, fmt.Errorf("output value: %w", err)
	}
	amount, err := decodeAmount(valueVal)
	if err != nil {
		return nil, fmt.Errorf("output value: %w", err)
	}
	return &Output{
		Address: TruncateAddress(base58Encode(addrBytes)),
		Amount:  amount,
	}, nil
}

// decodeAmount reads a CBOR-encoded non-negative amount, supporting both
// plain integers and the positive-bignum tag (2) for values beyond uint64.
func decodeAmount(v any) (*big.Int, error) {
	switch n := v.(type) {
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int64:
		if n < 0 {
			return nil, fmt.Errorf("negative amount %d", n)
		}
		return big.NewInt(n), nil
	case cbor.Tag:
		b, ok := n.Content.([]byte)
		if !ok || n.Number != 2 {
			return nil, fmt.Errorf("unsupported amount tag %d", n.Number)
		}
		return new(big.Int).SetBytes(b), nil
	default:
		return nil, fmt.Errorf("unsupported amount type %T", v)
	}
}

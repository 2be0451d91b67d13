package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Values cached as blobs are CBOR encoded with core deterministic options,
// so equal values always produce equal bytes.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor encoder: %v", err))
	}
	cborDec, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 4096,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor decoder: %v", err))
	}
}

func encodeValue(v any) ([]byte, error) {
	data, err := cborEnc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	return data, nil
}

func decodeValue(data []byte, v any) error {
	if err := cborDec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor decode: %w", err)
	}
	return nil
}

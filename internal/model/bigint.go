package model

import (
	"bytes"
	"fmt"
	"math/big"
)

// BigInt is a big.Int that unmarshals from either a JSON string or a bare
// JSON number. Event exporters disagree on the encoding of raw token
// amounts, so the loader accepts both and always re-emits strings.
type BigInt struct {
	big.Int
}

// NewBigInt returns a BigInt holding v.
func NewBigInt(v int64) *BigInt {
	b := new(BigInt)
	b.SetInt64(v)
	return b
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		data = bytes.Trim(data, `"`)
	}
	if len(data) == 0 {
		return nil
	}
	if _, ok := b.SetString(string(data), 10); !ok {
		return fmt.Errorf("invalid integer %q", data)
	}
	return nil
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

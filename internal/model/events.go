package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminates pool event records.
type EventType string

const (
	EventMint EventType = "Mint"
	EventBurn EventType = "Burn"
	EventSwap EventType = "Swap"
)

// Record is one pool event as read from the JSONL stream. Variant-specific
// fields are pointers so a missing field is distinguishable from a zero
// value; unknown fields in the input are ignored.
type Record struct {
	Type            EventType `json:"eventType"`
	BlockNumber     uint64    `json:"blockNumber"`
	BlockTimestamp  int64     `json:"blockTimestamp"`
	TransactionHash string    `json:"transactionHash"`
	LogIndex        uint64    `json:"logIndex,omitempty"`

	// Mint / Burn fields.
	Owner     string  `json:"owner,omitempty"`
	TickLower *int    `json:"tickLower,omitempty"`
	TickUpper *int    `json:"tickUpper,omitempty"`
	Liquidity *BigInt `json:"liquidity,omitempty"`

	// Mint and Swap carry amounts; Swap amounts are signed.
	Amount0 *BigInt `json:"amount0,omitempty"`
	Amount1 *BigInt `json:"amount1,omitempty"`

	// Swap post-state.
	SqrtPriceX96 *BigInt `json:"sqrtPriceX96,omitempty"`
	Tick         *int    `json:"tick,omitempty"`
}

// Validate checks the per-variant required fields of the input schema.
func (r *Record) Validate() error {
	if r.BlockTimestamp == 0 {
		return fmt.Errorf("missing blockTimestamp")
	}
	switch r.Type {
	case EventMint:
		if err := r.requireRange(); err != nil {
			return err
		}
		if r.Amount0 == nil || r.Amount1 == nil {
			return fmt.Errorf("mint missing amount0/amount1")
		}
	case EventBurn:
		if err := r.requireRange(); err != nil {
			return err
		}
	case EventSwap:
		if r.Amount0 == nil || r.Amount1 == nil {
			return fmt.Errorf("swap missing amount0/amount1")
		}
		if r.SqrtPriceX96 == nil || r.SqrtPriceX96.Sign() <= 0 {
			return fmt.Errorf("swap missing sqrtPriceX96")
		}
		if r.Tick == nil {
			return fmt.Errorf("swap missing tick")
		}
		if r.Liquidity == nil || r.Liquidity.Sign() < 0 {
			return fmt.Errorf("swap missing or negative liquidity")
		}
	default:
		return fmt.Errorf("unknown eventType %q", r.Type)
	}
	return nil
}

func (r *Record) requireRange() error {
	if r.Owner == "" {
		return fmt.Errorf("%s missing owner", r.Type)
	}
	if r.TickLower == nil || r.TickUpper == nil {
		return fmt.Errorf("%s missing tickLower/tickUpper", r.Type)
	}
	if r.Liquidity == nil || r.Liquidity.Sign() < 0 {
		return fmt.Errorf("%s missing or negative liquidity", r.Type)
	}
	return nil
}

// OwnerAddress returns the checksummed owner identity; position keys use
// this normalized form so differently-cased inputs collapse to one owner.
func (r *Record) OwnerAddress() string {
	if r.Owner == "" {
		return ""
	}
	return common.HexToAddress(r.Owner).Hex()
}

// TxHash returns the normalized transaction hash.
func (r *Record) TxHash() common.Hash {
	return common.HexToHash(r.TransactionHash)
}

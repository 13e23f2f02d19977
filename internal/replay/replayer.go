package replay

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"v3backtester/internal/model"
	"v3backtester/internal/pool"
	"v3backtester/internal/uniswap"
)

// Discrepancy is one divergence between the replayed state and an event's
// reported values. The event still wins; the ledger only records the
// disagreement.
type Discrepancy struct {
	BlockNumber uint64 `json:"block_number"`
	Timestamp   int64  `json:"timestamp"`
	TxHash      string `json:"tx_hash"`
	Kind        string `json:"kind"`
	Detail      string `json:"detail"`
}

// Replayer advances a pool through a timestamp-ordered event stream. Events
// that cannot be applied are reported and skipped; the run never halts on
// stream content.
type Replayer struct {
	pool        *pool.Pool
	feeTier     uint32
	tickSpacing int
	logger      *zap.Logger

	discrepancies []Discrepancy
	skipped       int
	droppedFees   int
}

// New builds a replayer over a fresh pool.
func New(feeTier uint32, tickSpacing int, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		pool:        pool.New(),
		feeTier:     feeTier,
		tickSpacing: tickSpacing,
		logger:      logger,
	}
}

// Pool exposes the replayed state.
func (r *Replayer) Pool() *pool.Pool {
	return r.pool
}

// Discrepancies returns the ledger accumulated so far.
func (r *Replayer) Discrepancies() []Discrepancy {
	return r.discrepancies
}

// SkippedCount returns how many events could not be applied.
func (r *Replayer) SkippedCount() int {
	return r.skipped
}

// DroppedFeeCount returns how many swap fees were discarded because no
// liquidity was active to credit.
func (r *Replayer) DroppedFeeCount() int {
	return r.droppedFees
}

// Bootstrap initializes the pool from the first swap in the stream, the
// only record kind that carries a price. Mints that precede it then land on
// a priced pool, the way the original event data was produced.
func (r *Replayer) Bootstrap(records []model.Record) error {
	if r.pool.Initialized() {
		return nil
	}
	for i := range records {
		rec := &records[i]
		if rec.Type != model.EventSwap {
			continue
		}
		sqrt, overflow := uint256.FromBig(&rec.SqrtPriceX96.Int)
		if overflow {
			return fmt.Errorf("bootstrap: sqrtPriceX96 exceeds 256 bits at block %d", rec.BlockNumber)
		}
		if err := r.pool.Initialize(sqrt, r.feeTier, r.tickSpacing); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		r.pool.Tick = *rec.Tick
		return nil
	}
	return fmt.Errorf("bootstrap: no swap event in stream")
}

// Apply replays one event. The returned error is fatal (uninitialized pool
// or corrupt arithmetic); recoverable conditions go to the ledger instead.
func (r *Replayer) Apply(rec *model.Record) error {
	switch rec.Type {
	case model.EventSwap:
		return r.applySwap(rec)
	case model.EventMint:
		return r.applyMint(rec)
	case model.EventBurn:
		return r.applyBurn(rec)
	default:
		r.flag(rec, "InputShape", fmt.Sprintf("unknown event type %q", rec.Type))
		return nil
	}
}

func (r *Replayer) applySwap(rec *model.Record) error {
	sign0, sign1 := rec.Amount0.Sign(), rec.Amount1.Sign()
	if sign0 == 0 && sign1 == 0 {
		// Zero-amount swap: a no-op beyond adopting the post-state.
		return r.adoptSwapState(rec, false, nil)
	}
	if sign0 == sign1 {
		r.flag(rec, "InputShape", "swap amounts do not have opposite signs")
		r.skipped++
		return nil
	}

	zeroForOne := sign0 > 0
	var gross *big.Int
	if zeroForOne {
		gross = &rec.Amount0.Int
	} else {
		gross = &rec.Amount1.Int
	}

	amountIn, overflow := uint256.FromBig(new(big.Int).Abs(gross))
	if overflow {
		r.flag(rec, "InputShape", "swap input amount exceeds 256 bits")
		r.skipped++
		return nil
	}
	return r.adoptSwapState(rec, zeroForOne, amountIn)
}

func (r *Replayer) adoptSwapState(rec *model.Record, zeroForOne bool, amountIn *uint256.Int) error {
	sqrtAfter, overflow := uint256.FromBig(&rec.SqrtPriceX96.Int)
	if overflow {
		r.flag(rec, "InputShape", "sqrtPriceX96 exceeds 256 bits")
		r.skipped++
		return nil
	}
	liquidityAfter, overflow := uint256.FromBig(&rec.Liquidity.Int)
	if overflow {
		r.flag(rec, "InputShape", "liquidity exceeds 256 bits")
		r.skipped++
		return nil
	}

	if !r.pool.Initialized() {
		if err := r.pool.Initialize(sqrtAfter, r.feeTier, r.tickSpacing); err != nil {
			return fmt.Errorf("lazy initialize: %w", err)
		}
		r.pool.Tick = *rec.Tick
		r.pool.Liquidity.Set(liquidityAfter)
		return nil
	}

	outcome, err := r.pool.ApplySwap(zeroForOne, amountIn, sqrtAfter, *rec.Tick, liquidityAfter)
	if err != nil {
		return fmt.Errorf("apply swap at block %d (timestamp %d): %w", rec.BlockNumber, rec.BlockTimestamp, err)
	}
	if outcome.FeeDropped {
		r.droppedFees++
	}
	if !outcome.LiquidityMatched {
		r.flag(rec, "InvariantViolation", fmt.Sprintf(
			"replayed liquidity disagrees with event post-state %s", rec.Liquidity.String()))
	}
	return nil
}

func (r *Replayer) applyMint(rec *model.Record) error {
	if !r.pool.Initialized() {
		r.flag(rec, "InputShape", "mint before any priced event")
		r.skipped++
		return nil
	}
	liquidity, overflow := uint256.FromBig(&rec.Liquidity.Int)
	if overflow || liquidity.IsZero() {
		r.flag(rec, "InputShape", "mint liquidity missing or out of range")
		r.skipped++
		return nil
	}

	tickLower, tickUpper := *rec.TickLower, *rec.TickUpper
	if err := r.pool.Mint(rec.OwnerAddress(), tickLower, tickUpper, liquidity); err != nil {
		if errors.Is(err, uniswap.ErrOverflow) {
			return fmt.Errorf("mint at block %d (timestamp %d): %w", rec.BlockNumber, rec.BlockTimestamp, err)
		}
		r.flag(rec, "StreamApply", err.Error())
		r.skipped++
		return nil
	}

	// The reported amounts should match the replayed position up to one
	// raw unit per side; on-chain truth wins either way.
	want0, want1 := uniswap.AmountsForLiquidity(
		r.pool.SqrtPriceX96,
		uniswap.SqrtRatioAtTick(tickLower),
		uniswap.SqrtRatioAtTick(tickUpper),
		liquidity)
	if !withinOneUnit(want0, &rec.Amount0.Int) || !withinOneUnit(want1, &rec.Amount1.Int) {
		r.flag(rec, "InvariantViolation", fmt.Sprintf(
			"mint amounts %s/%s disagree with computed %s/%s",
			rec.Amount0.String(), rec.Amount1.String(), want0, want1))
	}
	return nil
}

func (r *Replayer) applyBurn(rec *model.Record) error {
	if !r.pool.Initialized() {
		r.flag(rec, "InputShape", "burn before any priced event")
		r.skipped++
		return nil
	}
	liquidity, overflow := uint256.FromBig(&rec.Liquidity.Int)
	if overflow {
		r.flag(rec, "InputShape", "burn liquidity out of range")
		r.skipped++
		return nil
	}
	if liquidity.IsZero() {
		// Zero-liquidity burns are fee pokes on chain; nothing to replay.
		return nil
	}

	if _, _, err := r.pool.Burn(rec.OwnerAddress(), *rec.TickLower, *rec.TickUpper, liquidity); err != nil {
		if errors.Is(err, uniswap.ErrOverflow) {
			return fmt.Errorf("burn at block %d (timestamp %d): %w", rec.BlockNumber, rec.BlockTimestamp, err)
		}
		// Typically a position minted before the data window begins.
		r.flag(rec, "StreamApply", err.Error())
		r.skipped++
	}
	return nil
}

func (r *Replayer) flag(rec *model.Record, kind, detail string) {
	r.discrepancies = append(r.discrepancies, Discrepancy{
		BlockNumber: rec.BlockNumber,
		Timestamp:   rec.BlockTimestamp,
		TxHash:      rec.TransactionHash,
		Kind:        kind,
		Detail:      detail,
	})
	r.logger.Debug("replay discrepancy",
		zap.String("kind", kind),
		zap.Uint64("block", rec.BlockNumber),
		zap.String("detail", detail))
}

func withinOneUnit(computed *uint256.Int, reported *big.Int) bool {
	rep, overflow := uint256.FromBig(new(big.Int).Abs(reported))
	if overflow {
		return false
	}
	diff := new(uint256.Int)
	if computed.Cmp(rep) > 0 {
		diff.Sub(computed, rep)
	} else {
		diff.Sub(rep, computed)
	}
	return diff.CmpUint64(1) <= 0
}

package domain

import "math/bits"

const (
	// BasisPointDivisor converts a basis-point rate to a fraction
	// (1 bps = 0.01%).
	BasisPointDivisor uint64 = 10_000

	// DefaultFeeBps is the protocol fee applied when a market is created
	// without an explicit rate (0.5%).
	DefaultFeeBps uint64 = 50
)

// Fee returns the protocol fee for amount at the given basis-point rate,
// rounded down. The truncated remainder stays with the staker, never the
// fee pool.
func Fee(amount, bps uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, bps)
	if hi >= BasisPointDivisor {
		return 0, ErrArithmeticOverflow
	}
	fee, _ := bits.Div64(hi, lo, BasisPointDivisor)
	return fee, nil
}

// NetAndFee splits a gross stake into the net amount credited to the pool
// and the fee credited to the market's fee accumulator.
func NetAndFee(amount, bps uint64) (net, fee uint64, err error) {
	if amount == 0 {
		return 0, 0, ErrInvalidAmount
	}
	fee, err = Fee(amount, bps)
	if err != nil {
		return 0, 0, err
	}
	return amount - fee, fee, nil
}

// Payout computes a winner's pari-mutuel share:
//
//	stake * totalPool / winningPool
//
// The multiplication is widened to 128 bits so the intermediate product
// cannot wrap. The result is rounded down; across all winners the payouts
// sum to at most totalPool.
func Payout(stake, winningPool, totalPool uint64) (uint64, error) {
	if stake == 0 {
		return 0, ErrNoWinningsToClaim
	}
	if winningPool == 0 {
		return 0, ErrNoWinningsToClaim
	}
	hi, lo := bits.Mul64(stake, totalPool)
	// Div64 requires hi < divisor, which is exactly the condition for the
	// quotient to fit in 64 bits.
	if hi >= winningPool {
		return 0, ErrArithmeticOverflow
	}
	out, _ := bits.Div64(hi, lo, winningPool)
	return out, nil
}

// CheckedAdd returns a + b, or ErrArithmeticOverflow if the sum wraps.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b, or ErrArithmeticOverflow if b exceeds a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

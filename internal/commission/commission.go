// Package commission computes the platform fee split applied when escrowed
// funds are released to a technician.
package commission

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount = errors.New("gross amount must be positive")
	ErrInvalidRate   = errors.New("commission rate must be between 0 and 100")
)

// Split divides a gross amount (minor currency units) into the platform
// commission and the net amount payable to the technician.
//
// The commission is floored, never rounded, so any remainder from integer
// division stays in the net amount. The platform must not under-collect on
// one payment and over-collect on the next to compensate.
func Split(grossAmount int64, ratePercent int) (commissionAmount, netAmount int64, err error) {
	if grossAmount <= 0 {
		return 0, 0, fmt.Errorf("%w: got %d", ErrInvalidAmount, grossAmount)
	}
	if ratePercent < 0 || ratePercent > 100 {
		return 0, 0, fmt.Errorf("%w: got %d", ErrInvalidRate, ratePercent)
	}

	commissionAmount = grossAmount * int64(ratePercent) / 100
	netAmount = grossAmount - commissionAmount
	return commissionAmount, netAmount, nil
}

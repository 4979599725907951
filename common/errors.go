package common

import (
	"errors"

	"github.com/hermeznetwork/tracerr"
)

// Wrap annotates err with a stack trace at the call site without changing
// its Error() string. It is a no-op on a nil error.
func Wrap(err error) error {
	return tracerr.Wrap(err)
}

// ErrOrderMissing is returned when a match references an order id that the
// order store does not have.
var ErrOrderMissing = errors.New("referenced order is missing")

// ErrMultipleOrdersUnsupported is returned when a match's listing or offer
// partition contains more than one order.
var ErrMultipleOrdersUnsupported = errors.New("match references more than one listing or offer")

// ErrOrderInvalid is returned when the exchange contract rejects a match, or
// a referenced order can't be built into a bundle item.
var ErrOrderInvalid = errors.New("order pair is not executable")

// ErrNotApprovedToTransferToken is returned when the seller has not
// approved the exchange operator on the NFT collection.
var ErrNotApprovedToTransferToken = errors.New("exchange is not approved to transfer token")

// ErrInsufficientTokenBalance is returned when the seller no longer owns
// the NFT being sold.
var ErrInsufficientTokenBalance = errors.New("seller no longer owns token")

// ErrInsufficientCurrencyAllowance is returned when the buyer has not
// approved enough currency allowance to the exchange.
var ErrInsufficientCurrencyAllowance = errors.New("buyer currency allowance is insufficient")

// ErrInsufficientCurrencyBalance is returned when the buyer's currency
// balance is below the expected cost.
var ErrInsufficientCurrencyBalance = errors.New("buyer currency balance is insufficient")

// ErrBundleTooLarge is returned when no bundle size packs an item under the
// gas ceiling.
var ErrBundleTooLarge = errors.New("item does not fit under the gas ceiling at any bundle size")

// ErrPriceWindowClosed is returned when now is outside [startTime, endTime]
// for a Dutch-auction order.
var ErrPriceWindowClosed = errors.New("current time is outside the order's price window")

// ErrChainIDMismatch is returned when a match's two orders disagree on
// chainId, or either of them has none.
var ErrChainIDMismatch = errors.New("orders disagree on chainId")

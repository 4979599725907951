package common

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// BundleItem is the discriminated union described in spec.md §3: a
// one-to-one match, or an N-NFT match carrying a synthetic Constructed
// order. Type selects which fields are meaningful; Constructed is nil for
// MatchOneToOneOrders.
type BundleItem struct {
	ID              MatchID
	Type            MatchType
	ChainID         *big.Int
	ExchangeAddress ethCommon.Address

	SellOrder Order
	BuyOrder  Order
	SellHash  OrderHash
	BuyHash   OrderHash

	// Constructed is the synthetic buy-side order built for
	// MatchOrders items: IsSellOrder=false, Constraints derived from
	// the offer's constraints[1:5] plus numMatches at position 0 and
	// the offer's nonce at position 5, NFTs set to the flattened
	// intersection (see BuildConstructedOrder).
	Constructed *Order
}

// BundleItemWithCurrentPrice augments a validated bundle item with the
// price in the order currency's smallest unit, computed by the verifier.
type BundleItemWithCurrentPrice struct {
	BundleItem
	CurrentPrice *big.Int
}

// BuildConstructedOrder builds the synthetic order described in spec.md §3
// for a MatchOrders item: numMatches goes in constraints[0], the offer's
// constraints[1..4] (startPrice, endPrice, startTimeSec, endTimeSec) carry
// over unchanged, and the offer's nonce (constraints[5]) is reused so the
// constructed order settles against the same on-chain nonce slot as the
// offer it summarizes.
func BuildConstructedOrder(offer *Order, flattened NFTSet, numMatches int64) *Order {
	c := Constraints{
		big.NewInt(numMatches),
		offer.Constraints.StartPrice(),
		offer.Constraints.EndPrice(),
		offer.Constraints.StartTime(),
		offer.Constraints.EndTime(),
		offer.Constraints.Nonce(),
	}
	return &Order{
		ChainID:     offer.ChainID,
		IsSellOrder: false,
		Signer:      offer.Signer,
		Constraints: c,
		NFTs:        flattened,
		ExecParams:  offer.ExecParams,
	}
}

// Package common holds the data model shared by every stage of the
// order-match pipeline: signed maker orders, the matches an off-chain
// matcher proposes between them, and the bundle items the packer produces.
package common

import (
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// OrderID identifies a signed maker order in the order store.
type OrderID string

// constraintsLen is the number of entries in an order's Constraints array:
// [numItems, startPrice, endPrice, startTimeSec, endTimeSec, nonce].
const constraintsLen = 6

// Constraints are the six arbitrary-precision numbers carried by every
// order. Index meanings follow spec.md §3: 0 numItems, 1 startPrice,
// 2 endPrice, 3 startTimeSec, 4 endTimeSec, 5 nonce.
type Constraints [constraintsLen]*big.Int

const (
	constraintNumItems = iota
	constraintStartPrice
	constraintEndPrice
	constraintStartTime
	constraintEndTime
	constraintNonce
)

// NumItems, StartPrice, EndPrice, StartTime, EndTime and Nonce are
// convenience accessors over the positional Constraints array.
func (c Constraints) NumItems() *big.Int  { return c[constraintNumItems] }
func (c Constraints) StartPrice() *big.Int { return c[constraintStartPrice] }
func (c Constraints) EndPrice() *big.Int   { return c[constraintEndPrice] }
func (c Constraints) StartTime() *big.Int  { return c[constraintStartTime] }
func (c Constraints) EndTime() *big.Int    { return c[constraintEndTime] }
func (c Constraints) Nonce() *big.Int      { return c[constraintNonce] }

// ToDecimalStrings normalizes every entry to its canonical decimal-string
// wire form. A nil entry normalizes to "0".
func (c Constraints) ToDecimalStrings() [constraintsLen]string {
	var out [constraintsLen]string
	for i, v := range c {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.String()
	}
	return out
}

// ConstraintsFromDecimalStrings is the inverse of ToDecimalStrings, used by
// the round-trip property in spec.md §8.
func ConstraintsFromDecimalStrings(ss [constraintsLen]string) (Constraints, error) {
	var c Constraints
	for i, s := range ss {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return Constraints{}, Wrap(fmt.Errorf("constraint %d: not a decimal integer: %q", i, s))
		}
		c[i] = v
	}
	return c, nil
}

// TokenAmount is a single NFT token id and the number of copies required,
// as found under a collection in an order's or match's NFT tree.
type TokenAmount struct {
	TokenID   *big.Int
	NumTokens *big.Int
}

// NFTCollection is the set of token amounts required from one collection
// address. It doubles as both an order's `nfts` entry and a match's
// `matchData.orderItems` entry: both shapes are `{collection, tokens[]}`.
type NFTCollection struct {
	Collection ethCommon.Address
	Tokens     []TokenAmount
}

// NFTSet is an ordered list of collections. Order matters: flattening
// (FlattenNFTs) and numMatches accumulation both iterate it in insertion
// order, matching spec.md §3's "iterate ... in insertion order".
type NFTSet []NFTCollection

// ExecParams is the pair of addresses every order carries:
// [complicationAddress, currencyAddress].
type ExecParams struct {
	ComplicationAddress ethCommon.Address
	CurrencyAddress     ethCommon.Address
}

// Order is a signed maker order as defined in spec.md §3. All numeric
// fields are arbitrary-precision; Constraints MUST be normalized to
// canonical decimal strings before being handed to an encoder (see
// Constraints.ToDecimalStrings).
type Order struct {
	ID          OrderID
	ChainID     *big.Int
	IsSellOrder bool
	Signer      ethCommon.Address
	Constraints Constraints
	NFTs        NFTSet
	ExecParams  ExecParams
	ExtraParams []byte
	Signature   []byte
}

// Currency returns the order's currency address (execParams[1]).
func (o *Order) Currency() ethCommon.Address {
	return o.ExecParams.CurrencyAddress
}

// OrderHash is an order's identifying hash as carried on a BundleItem
// (SellHash/BuyHash). The builder computes it as keccak256 over the
// order's signer and normalized constraints (see builder.orderHash).
type OrderHash = ethCommon.Hash

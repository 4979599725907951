// Package builder implements the Bundle Item Builder (C2): it turns a
// match document plus its two referenced orders into a typed BundleItem.
package builder

import (
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/log"
)

// OrderStore is the batched order read the builder needs. Implementations
// typically wrap whatever datastore holds signed maker orders; that store
// is an external collaborator (spec.md §1 scopes out the matching engine
// that writes orders) so only the read contract lives here.
type OrderStore interface {
	BatchGet(ids []common.OrderID) (map[common.OrderID]*common.Order, error)
}

// Result is either an Update carrying a built item, or a Remove.
type Result struct {
	MatchID common.MatchID
	Item    *common.BundleItem
	Removed bool
}

// Builder builds BundleItems from match documents.
type Builder struct {
	orders          OrderStore
	exchangeAddress ethCommon.Address
}

// New builds a Builder bound to the exchange deployment every produced item
// will target.
func New(orders OrderStore, exchangeAddress ethCommon.Address) *Builder {
	return &Builder{orders: orders, exchangeAddress: exchangeAddress}
}

// Build implements spec.md §4.2 steps 1-5. On any validation failure it
// returns a non-nil error whose message is suitable to report via
// onInvalidated(id, "OrderInvalid", err.Error()); the caller owns that
// write-back so the builder stays free of matchsource dependencies.
func (b *Builder) Build(matchID common.MatchID, m *common.Match) (*common.BundleItem, error) {
	orders, err := b.orders.BatchGet([]common.OrderID{m.ListingID, m.OfferID})
	if err != nil {
		return nil, common.Wrap(err)
	}

	sell, ok := orders[m.ListingID]
	if !ok || sell == nil {
		return nil, common.Wrap(common.ErrOrderMissing)
	}
	buy, ok := orders[m.OfferID]
	if !ok || buy == nil {
		return nil, common.Wrap(common.ErrOrderMissing)
	}
	if !sell.IsSellOrder {
		return nil, common.Wrap(common.ErrMultipleOrdersUnsupported)
	}
	if buy.IsSellOrder {
		return nil, common.Wrap(common.ErrMultipleOrdersUnsupported)
	}
	if sell.ChainID == nil || buy.ChainID == nil || sell.ChainID.Cmp(buy.ChainID) != 0 {
		return nil, common.Wrap(common.ErrChainIDMismatch)
	}

	normalizeConstraints(sell)
	normalizeConstraints(buy)

	sellHash := orderHash(sell)
	buyHash := orderHash(buy)

	item := &common.BundleItem{
		ID:              matchID,
		ChainID:         sell.ChainID,
		ExchangeAddress: b.exchangeAddress,
		SellOrder:       *sell,
		BuyOrder:        *buy,
		SellHash:        sellHash,
		BuyHash:         buyHash,
	}

	flattened, numMatches := common.FlattenNFTs(m.MatchData.OrderItems)

	switch m.Type {
	case common.MatchOneToOneOrders:
		item.Type = common.MatchOneToOneOrders
	case common.MatchOrders:
		item.Type = common.MatchOrders
		item.Constructed = common.BuildConstructedOrder(buy, flattened, numMatches)
		normalizeConstraints(item.Constructed)
	default:
		log.Errorw("builder: unknown match type", "matchId", matchID, "type", m.Type)
		return nil, common.Wrap(common.ErrOrderInvalid)
	}

	return item, nil
}

// normalizeConstraints rewrites an order's constraints through the
// canonical decimal-string round trip in place, per spec.md §4.2 step 5.
func normalizeConstraints(o *common.Order) {
	ss := o.Constraints.ToDecimalStrings()
	c, err := common.ConstraintsFromDecimalStrings(ss)
	if err != nil {
		// ToDecimalStrings always produces parseable decimal strings;
		// a failure here means a constraint was corrupted in a way
		// the type system should have prevented.
		log.Errorw("builder: constraints failed round trip", "err", err)
		return
	}
	o.Constraints = c
}

// orderHash computes a stable, content-derived identifying hash for an
// order: keccak256 over its signer address bytes followed by its
// normalized constraints as decimal strings. It is carried on the bundle
// item as SellHash/BuyHash. It is not an ABI-encoded order hash, and it is
// not passed to verifyMatchOrders, which receives the encoded orders only.
func orderHash(o *common.Order) common.OrderHash {
	var buf []byte
	buf = append(buf, o.Signer.Bytes()...)
	for _, s := range o.Constraints.ToDecimalStrings() {
		buf = append(buf, s...)
	}
	return ethCommon.BytesToHash(crypto.Keccak256(buf))
}

// Package packer implements the Bundle Packer (C5): it partitions
// validated items into bundles, encodes each as exchange-contract calldata,
// estimates gas, and recursively re-splits oversize bundles.
package packer

import (
	"context"
	"math"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/gasoracle"
	"ordermatch-pipeline/log"
)

// Encoder builds calldata for the exchange contract's two match entry
// points.
type Encoder interface {
	EncodeMatchOrders(sells, buys, constructed []*common.Order) ([]byte, error)
	EncodeMatchOneToOneOrders(sells, buys []*common.Order) ([]byte, error)
}

// GasEstimator estimates a call's gas consumption, the authoritative
// sizing oracle per spec.md §4.5, and reports the node's own view of the
// current tip, the primary source for a bundle's gas tip cap.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// GasPriceOracle is a secondary, off-chain gas-price source consulted as a
// sanity bound on the node's own SuggestGasTipCap.
type GasPriceOracle interface {
	GetGasPrice(ctx context.Context) (*gasoracle.GasPriceGwei, error)
}

// TransactionRequest is a packed bundle ready for the broadcaster.
type TransactionRequest struct {
	To        ethCommon.Address
	Data      []byte
	GasLimit  uint64
	GasTipCap *big.Int
	ChainID   *big.Int
	Type      uint8 // EIP-1559 = 2
	MatchIDs  []common.MatchID
}

// Rejection is a typed, item-attributed failure.
type Rejection struct {
	Item    common.BundleItemWithCurrentPrice
	Code    string
	Message string
}

// Packer runs C5.
type Packer struct {
	encoder  Encoder
	gas      GasEstimator
	oracle   GasPriceOracle
	exchange ethCommon.Address
	signer   ethCommon.Address
	config   common.ChainConfig
}

// New builds a Packer bound to one chain's exchange deployment and signer.
// oracle may be nil, in which case every bundle's tip cap comes from gas's
// own SuggestGasTipCap with no secondary sanity bound.
func New(encoder Encoder, gas GasEstimator, oracle GasPriceOracle, exchange, signer ethCommon.Address,
	config common.ChainConfig) *Packer {
	return &Packer{encoder: encoder, gas: gas, oracle: oracle, exchange: exchange, signer: signer, config: config}
}

// Pack runs the full algorithm in spec.md §4.5, including the bounded
// recursive re-split on gas-ceiling overflow. A valid item count below
// minBundleSize aborts to an empty result, per step 7.
func (p *Packer) Pack(ctx context.Context, items []common.BundleItemWithCurrentPrice,
	minBundleSize int) ([]TransactionRequest, []Rejection) {

	if len(items) < minBundleSize {
		log.Warnw("packer: batch below minimum bundle size, aborting", "have", len(items), "min", minBundleSize)
		return nil, nil
	}

	tipCap := p.sanityBoundedTipCap(ctx)

	// Each transformer-specific calldata tuple (spec.md §4.5 step 2) is
	// shaped for exactly one MatchType's encoder, so bundles must never mix
	// types: group first, then size and re-split each group independently.
	var requests []TransactionRequest
	var rejections []Rejection
	for _, group := range partitionByType(items) {
		maxK := maxInt(8, len(group))
		reqs, rejs := p.packAtSize(ctx, group, 1, maxK)
		for i := range reqs {
			reqs[i].GasTipCap = tipCap
		}
		requests = append(requests, reqs...)
		rejections = append(rejections, rejs...)
	}
	return requests, rejections
}

// sanityBoundedTipCap takes the node's own SuggestGasTipCap as the
// authoritative value and, when a secondary oracle is configured, clamps it
// to the oracle's proposed price so a misbehaving node never produces a
// wildly overpriced bundle. Oracle or node failures are logged and fall
// back to whichever source succeeded, or nil if neither did.
func (p *Packer) sanityBoundedTipCap(ctx context.Context) *big.Int {
	nodeTip, err := p.gas.SuggestGasTipCap(ctx)
	if err != nil {
		log.Warnw("packer: SuggestGasTipCap failed", "err", err)
		nodeTip = nil
	}
	if p.oracle == nil {
		return nodeTip
	}
	priceGwei, err := p.oracle.GetGasPrice(ctx)
	if err != nil {
		log.Warnw("packer: gasoracle lookup failed, using node tip only", "err", err)
		return nodeTip
	}
	oracleTip, err := priceGwei.ProposeGasPriceWei()
	if err != nil {
		log.Warnw("packer: gasoracle price unparseable, using node tip only", "err", err)
		return nodeTip
	}
	if nodeTip == nil {
		return oracleTip
	}
	if oracleTip.Cmp(nodeTip) < 0 {
		return oracleTip
	}
	return nodeTip
}

// partitionByType groups items by MatchType, preserving each type's first-
// seen order, so every bucket roundRobin produces downstream is
// type-homogeneous.
func partitionByType(items []common.BundleItemWithCurrentPrice) [][]common.BundleItemWithCurrentPrice {
	byType := map[common.MatchType][]common.BundleItemWithCurrentPrice{}
	var order []common.MatchType
	for _, it := range items {
		if _, ok := byType[it.Type]; !ok {
			order = append(order, it.Type)
		}
		byType[it.Type] = append(byType[it.Type], it)
	}
	groups := make([][]common.BundleItemWithCurrentPrice, 0, len(order))
	for _, t := range order {
		groups = append(groups, byType[t])
	}
	return groups
}

func (p *Packer) packAtSize(ctx context.Context, items []common.BundleItemWithCurrentPrice,
	numBundles, maxK int) ([]TransactionRequest, []Rejection) {

	rawBuckets := roundRobin(items, numBundles)
	encodedBuckets, dropRejections := p.encodeBuckets(rawBuckets)
	buckets, estimateRejections := p.estimateBuckets(ctx, encodedBuckets)

	var oversize []packedBucket
	var requests []TransactionRequest
	for _, b := range buckets {
		gasLimit := p.config.ApplyGasHeadroom(b.gasEstimate)
		if gasLimit > p.config.MaxGasLimit {
			oversize = append(oversize, b)
			continue
		}
		requests = append(requests, TransactionRequest{
			To:       p.exchange,
			Data:     b.data,
			GasLimit: gasLimit,
			ChainID:  p.config.ChainID,
			Type:     2,
			MatchIDs: ids(b.items),
		})
	}

	rejections := append(dropRejections, estimateRejections...)

	if len(oversize) == 0 {
		return requests, rejections
	}

	surviving := flatten(oversize)
	estimatedK := int(math.Ceil(float64(len(surviving)) / float64(maxUint64(p.config.MaxGasLimit, 1))))
	newK := maxInt(estimatedK, numBundles*2)

	if newK > maxK {
		for _, item := range surviving {
			rejections = append(rejections, Rejection{Item: item, Code: "BundleTooLarge",
				Message: "item does not fit under the gas ceiling at any bundle size"})
		}
		return requests, rejections
	}

	recursedRequests, recursedRejections := p.packAtSize(ctx, surviving, newK, maxK)
	return append(requests, recursedRequests...), append(rejections, recursedRejections...)
}

type packedBucket struct {
	items       []common.BundleItemWithCurrentPrice
	data        []byte
	gasEstimate uint64
}

func (p *Packer) encodeBuckets(buckets [][]common.BundleItemWithCurrentPrice) ([]packedBucket, []Rejection) {
	var out []packedBucket
	var rejections []Rejection
	for _, items := range buckets {
		if len(items) == 0 {
			continue
		}
		data, err := p.encode(items)
		if err != nil {
			log.Warnw("packer: encode failed, dropping bucket", "err", err, "size", len(items))
			for _, item := range items {
				rejections = append(rejections, Rejection{Item: item, Code: "OrderInvalid", Message: err.Error()})
			}
			continue
		}
		out = append(out, packedBucket{items: items, data: data})
	}
	return out, rejections
}

func (p *Packer) encode(items []common.BundleItemWithCurrentPrice) ([]byte, error) {
	kind := items[0].Type
	switch kind {
	case common.MatchOneToOneOrders:
		sells := make([]*common.Order, len(items))
		buys := make([]*common.Order, len(items))
		for i, it := range items {
			sells[i] = &it.SellOrder
			buys[i] = &it.BuyOrder
		}
		return p.encoder.EncodeMatchOneToOneOrders(sells, buys)
	case common.MatchOrders:
		sells := make([]*common.Order, len(items))
		buys := make([]*common.Order, len(items))
		constructed := make([]*common.Order, len(items))
		for i, it := range items {
			sells[i] = &it.SellOrder
			buys[i] = &it.BuyOrder
			constructed[i] = it.Constructed
		}
		return p.encoder.EncodeMatchOrders(sells, buys, constructed)
	default:
		return nil, common.Wrap(common.ErrOrderInvalid)
	}
}

func (p *Packer) estimateBuckets(ctx context.Context, buckets []packedBucket) ([]packedBucket, []Rejection) {
	estimates := make([]uint64, len(buckets))
	errs := make([]error, len(buckets))

	g, gctx := errgroup.WithContext(ctx)
	for i := range buckets {
		i := i
		b := buckets[i]
		g.Go(func() error {
			gas, err := p.gas.EstimateGas(gctx, ethereum.CallMsg{
				From: p.signer, To: &p.exchange, Data: b.data,
			})
			estimates[i] = gas
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var out []packedBucket
	var rejections []Rejection
	for i, b := range buckets {
		if errs[i] != nil {
			log.Warnw("packer: estimateGas failed, dropping bucket", "err", errs[i], "size", len(b.items))
			for _, item := range b.items {
				rejections = append(rejections, Rejection{Item: item, Code: "UnknownError", Message: errs[i].Error()})
			}
			continue
		}
		b.gasEstimate = estimates[i]
		out = append(out, b)
	}
	return out, rejections
}

func roundRobin(items []common.BundleItemWithCurrentPrice, numBundles int) [][]common.BundleItemWithCurrentPrice {
	if numBundles < 1 {
		numBundles = 1
	}
	buckets := make([][]common.BundleItemWithCurrentPrice, numBundles)
	for i, item := range items {
		buckets[i%numBundles] = append(buckets[i%numBundles], item)
	}
	return buckets
}

func flatten(buckets []packedBucket) []common.BundleItemWithCurrentPrice {
	var out []common.BundleItemWithCurrentPrice
	for _, b := range buckets {
		out = append(out, b.items...)
	}
	return out
}

func ids(items []common.BundleItemWithCurrentPrice) []common.MatchID {
	out := make([]common.MatchID, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

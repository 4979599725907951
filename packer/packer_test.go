package packer

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/gasoracle"
)

type fakeEncoder struct{}

func (fakeEncoder) EncodeMatchOrders(sells, buys, constructed []*common.Order) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}
func (fakeEncoder) EncodeMatchOneToOneOrders(sells, buys []*common.Order) ([]byte, error) {
	return []byte{4, 5, 6}, nil
}

type fixedGasEstimator struct {
	gas    uint64
	err    error
	tipCap *big.Int
}

func (f fixedGasEstimator) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.gas, f.err
}

func (f fixedGasEstimator) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if f.tipCap != nil {
		return f.tipCap, nil
	}
	return big.NewInt(1), nil
}

func itemsOfType(n int, typ common.MatchType) []common.BundleItemWithCurrentPrice {
	out := make([]common.BundleItemWithCurrentPrice, n)
	for i := range out {
		item := common.BundleItem{ID: common.MatchID(string(rune('a' + i))), Type: typ}
		if typ == common.MatchOrders {
			item.Constructed = &common.Order{ID: common.OrderID(string(rune('a' + i)) + "-constructed")}
		}
		out[i] = common.BundleItemWithCurrentPrice{BundleItem: item, CurrentPrice: big.NewInt(1)}
	}
	return out
}

// nilConstructedCheckingEncoder mimics the eth package's encodeOrder and its
// reliance on a non-nil Constructed order: it errors instead of panicking
// so a regression (a MatchOneToOneOrders item landing in a MatchOrders
// bucket) shows up as a test failure rather than a crash.
type nilConstructedCheckingEncoder struct {
	oneToOneCalls, matchOrdersCalls int
}

func (e *nilConstructedCheckingEncoder) EncodeMatchOrders(sells, buys, constructed []*common.Order) ([]byte, error) {
	e.matchOrdersCalls++
	for _, c := range constructed {
		if c == nil {
			return nil, assertErr{}
		}
	}
	return []byte{1, 2, 3}, nil
}

func (e *nilConstructedCheckingEncoder) EncodeMatchOneToOneOrders(sells, buys []*common.Order) ([]byte, error) {
	e.oneToOneCalls++
	return []byte{4, 5, 6}, nil
}

func TestPackHappyPathOneBundle(t *testing.T) {
	p := New(fakeEncoder{}, fixedGasEstimator{gas: 100000}, nil, ethCommon.HexToAddress("0xee"),
		ethCommon.HexToAddress("0x1"), common.ChainConfig{MaxGasLimit: 8000000, GasHeadroomNum: 12, GasHeadroomDen: 10})

	items := itemsOfType(3, common.MatchOneToOneOrders)
	requests, rejections := p.Pack(context.Background(), items, 1)
	assert.Len(t, rejections, 0)
	require.Len(t, requests, 1)
	assert.Equal(t, uint64(120000), requests[0].GasLimit)
	assert.Len(t, requests[0].MatchIDs, 3)
}

func TestPackAbortsBelowMinBundleSize(t *testing.T) {
	p := New(fakeEncoder{}, fixedGasEstimator{gas: 100000}, nil, ethCommon.HexToAddress("0xee"),
		ethCommon.HexToAddress("0x1"), common.ChainConfig{MaxGasLimit: 8000000})

	items := itemsOfType(2, common.MatchOneToOneOrders)
	requests, rejections := p.Pack(context.Background(), items, 5)
	assert.Len(t, requests, 0)
	assert.Len(t, rejections, 0)
}

func TestPackDropsBucketOnEstimateFailure(t *testing.T) {
	p := New(fakeEncoder{}, fixedGasEstimator{err: assertErr{}}, nil, ethCommon.HexToAddress("0xee"),
		ethCommon.HexToAddress("0x1"), common.ChainConfig{MaxGasLimit: 8000000})

	items := itemsOfType(2, common.MatchOneToOneOrders)
	requests, rejections := p.Pack(context.Background(), items, 1)
	assert.Len(t, requests, 0)
	require.Len(t, rejections, 2)
	assert.Equal(t, "UnknownError", rejections[0].Code)
}

type assertErr struct{}

func (assertErr) Error() string { return "rpc timeout" }

func TestPackPartitionsMixedTypesIntoHomogeneousBundles(t *testing.T) {
	encoder := &nilConstructedCheckingEncoder{}
	p := New(encoder, fixedGasEstimator{gas: 100000}, nil, ethCommon.HexToAddress("0xee"),
		ethCommon.HexToAddress("0x1"), common.ChainConfig{MaxGasLimit: 8000000, GasHeadroomNum: 12, GasHeadroomDen: 10})

	items := append(itemsOfType(2, common.MatchOneToOneOrders), itemsOfType(3, common.MatchOrders)...)
	requests, rejections := p.Pack(context.Background(), items, 1)

	require.Len(t, rejections, 0)
	require.Len(t, requests, 2)
	assert.Equal(t, 1, encoder.oneToOneCalls)
	assert.Equal(t, 1, encoder.matchOrdersCalls)

	total := 0
	for _, req := range requests {
		total += len(req.MatchIDs)
	}
	assert.Equal(t, 5, total)
}

// gasPerCallEstimator returns totalGas/numBundlesObserved-independent gas:
// it always reports a fixed total regardless of bucket size, forcing the
// packer to keep splitting until each bucket is below MaxGasLimit or the
// recursion bound is hit.
type gasPerCallEstimator struct {
	totalGas uint64
	calls    int32
}

func (g *gasPerCallEstimator) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	atomic.AddInt32(&g.calls, 1)
	return g.totalGas, nil
}

func (g *gasPerCallEstimator) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

type fakeOracle struct {
	proposeWei *big.Int
	err        error
}

func (f fakeOracle) GetGasPrice(ctx context.Context) (*gasoracle.GasPriceGwei, error) {
	if f.err != nil {
		return nil, f.err
	}
	gwei := new(big.Int).Div(f.proposeWei, big.NewInt(1_000_000_000))
	return &gasoracle.GasPriceGwei{ProposeGasPrice: gwei.String()}, nil
}

func TestPackClampsTipCapToOracleWhenLower(t *testing.T) {
	gas := fixedGasEstimator{gas: 100000, tipCap: big.NewInt(10_000_000_000)}
	oracle := fakeOracle{proposeWei: big.NewInt(5_000_000_000)}
	p := New(fakeEncoder{}, gas, oracle, ethCommon.HexToAddress("0xee"),
		ethCommon.HexToAddress("0x1"), common.ChainConfig{MaxGasLimit: 8000000, GasHeadroomNum: 12, GasHeadroomDen: 10})

	items := itemsOfType(2, common.MatchOneToOneOrders)
	requests, rejections := p.Pack(context.Background(), items, 1)
	require.Len(t, rejections, 0)
	require.Len(t, requests, 1)
	// the node reports a 10 gwei tip but the oracle's 5 gwei is lower, so
	// the oracle clamps it down as a sanity bound.
	assert.Equal(t, big.NewInt(5_000_000_000), requests[0].GasTipCap)
}

func TestPackFallsBackToNodeTipOnOracleFailure(t *testing.T) {
	gas := fixedGasEstimator{gas: 100000, tipCap: big.NewInt(1)}
	oracle := fakeOracle{err: assertErr{}}
	p := New(fakeEncoder{}, gas, oracle, ethCommon.HexToAddress("0xee"),
		ethCommon.HexToAddress("0x1"), common.ChainConfig{MaxGasLimit: 8000000, GasHeadroomNum: 12, GasHeadroomDen: 10})

	items := itemsOfType(1, common.MatchOneToOneOrders)
	requests, rejections := p.Pack(context.Background(), items, 1)
	require.Len(t, rejections, 0)
	require.Len(t, requests, 1)
	assert.Equal(t, big.NewInt(1), requests[0].GasTipCap)
}

func TestPackReSplitsOversizeBundle(t *testing.T) {
	gasEst := &gasPerCallEstimator{totalGas: 20000000}
	p := New(fakeEncoder{}, gasEst, nil, ethCommon.HexToAddress("0xee"),
		ethCommon.HexToAddress("0x1"), common.ChainConfig{MaxGasLimit: 8000000, GasHeadroomNum: 10, GasHeadroomDen: 10})

	items := itemsOfType(10, common.MatchOneToOneOrders)
	requests, rejections := p.Pack(context.Background(), items, 1)
	// Every bucket keeps reporting 20,000,000 regardless of split depth in
	// this fake, so the recursion bound (numBundles <= max(8, len(items)))
	// is eventually hit and every item ends up BundleTooLarge.
	assert.Len(t, requests, 0)
	assert.Len(t, rejections, 10)
	for _, r := range rejections {
		assert.Equal(t, "BundleTooLarge", r.Code)
	}
}

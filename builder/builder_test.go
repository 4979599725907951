package builder

import (
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordermatch-pipeline/common"
)

type fakeOrderStore struct {
	orders map[common.OrderID]*common.Order
	err    error
}

func (f *fakeOrderStore) BatchGet(ids []common.OrderID) (map[common.OrderID]*common.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[common.OrderID]*common.Order{}
	for _, id := range ids {
		if o, ok := f.orders[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func sampleOrder(id common.OrderID, sell bool, chainID int64) *common.Order {
	return &common.Order{
		ID:          id,
		ChainID:     big.NewInt(chainID),
		IsSellOrder: sell,
		Signer:      ethCommon.HexToAddress("0x1"),
		Constraints: common.Constraints{
			big.NewInt(1), big.NewInt(100), big.NewInt(50),
			big.NewInt(1000), big.NewInt(2000), big.NewInt(3),
		},
		ExecParams: common.ExecParams{CurrencyAddress: ethCommon.HexToAddress("0x2")},
	}
}

func TestBuildOneToOneItem(t *testing.T) {
	sell := sampleOrder("sell1", true, 1)
	buy := sampleOrder("buy1", false, 1)
	store := &fakeOrderStore{orders: map[common.OrderID]*common.Order{"sell1": sell, "buy1": buy}}
	b := New(store, ethCommon.HexToAddress("0xee"))

	m := &common.Match{ID: "m1", ListingID: "sell1", OfferID: "buy1", Type: common.MatchOneToOneOrders}
	item, err := b.Build("m1", m)
	require.NoError(t, err)
	assert.Equal(t, common.MatchOneToOneOrders, item.Type)
	assert.Nil(t, item.Constructed)
	assert.Equal(t, int64(1), item.ChainID.Int64())
}

func TestBuildMatchOrdersItemConstructsSyntheticOrder(t *testing.T) {
	sell := sampleOrder("sell1", true, 1)
	buy := sampleOrder("buy1", false, 1)
	store := &fakeOrderStore{orders: map[common.OrderID]*common.Order{"sell1": sell, "buy1": buy}}
	b := New(store, ethCommon.HexToAddress("0xee"))

	m := &common.Match{
		ID: "m1", ListingID: "sell1", OfferID: "buy1", Type: common.MatchOrders,
		MatchData: common.MatchData{OrderItems: common.NFTSet{
			{Collection: ethCommon.HexToAddress("0x3"), Tokens: []common.TokenAmount{{}, {}}},
		}},
	}
	item, err := b.Build("m1", m)
	require.NoError(t, err)
	require.NotNil(t, item.Constructed)
	assert.Equal(t, int64(2), item.Constructed.Constraints.NumItems().Int64())
	assert.False(t, item.Constructed.IsSellOrder)
}

func TestBuildFailsOnMissingOrder(t *testing.T) {
	sell := sampleOrder("sell1", true, 1)
	store := &fakeOrderStore{orders: map[common.OrderID]*common.Order{"sell1": sell}}
	b := New(store, ethCommon.HexToAddress("0xee"))

	m := &common.Match{ID: "m1", ListingID: "sell1", OfferID: "buy1", Type: common.MatchOneToOneOrders}
	_, err := b.Build("m1", m)
	assert.ErrorIs(t, err, common.ErrOrderMissing)
}

func TestBuildFailsOnPartitionMismatch(t *testing.T) {
	sell := sampleOrder("sell1", true, 1)
	notBuy := sampleOrder("sell2", true, 1)
	store := &fakeOrderStore{orders: map[common.OrderID]*common.Order{"sell1": sell, "sell2": notBuy}}
	b := New(store, ethCommon.HexToAddress("0xee"))

	m := &common.Match{ID: "m1", ListingID: "sell1", OfferID: "sell2", Type: common.MatchOneToOneOrders}
	_, err := b.Build("m1", m)
	assert.ErrorIs(t, err, common.ErrMultipleOrdersUnsupported)
}

func TestBuildFailsOnChainIDMismatch(t *testing.T) {
	sell := sampleOrder("sell1", true, 1)
	buy := sampleOrder("buy1", false, 2)
	store := &fakeOrderStore{orders: map[common.OrderID]*common.Order{"sell1": sell, "buy1": buy}}
	b := New(store, ethCommon.HexToAddress("0xee"))

	m := &common.Match{ID: "m1", ListingID: "sell1", OfferID: "buy1", Type: common.MatchOneToOneOrders}
	_, err := b.Build("m1", m)
	assert.ErrorIs(t, err, common.ErrChainIDMismatch)
}

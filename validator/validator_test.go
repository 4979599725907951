package validator

import (
	"context"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordermatch-pipeline/common"
)

type fakeTokens struct {
	approved    bool
	owner       ethCommon.Address
	allowance   *big.Int
	balance     *big.Int
	err         error
}

func (f *fakeTokens) Allowance(ctx context.Context, token, owner, spender ethCommon.Address) (*big.Int, error) {
	return f.allowance, f.err
}
func (f *fakeTokens) BalanceOf(ctx context.Context, token, account ethCommon.Address) (*big.Int, error) {
	return f.balance, f.err
}
func (f *fakeTokens) IsApprovedForAll(ctx context.Context, collection, owner, operator ethCommon.Address) (bool, error) {
	return f.approved, f.err
}
func (f *fakeTokens) OwnerOf(ctx context.Context, collection ethCommon.Address, tokenID *big.Int) (ethCommon.Address, error) {
	return f.owner, f.err
}

func sampleItem(signer, buyer ethCommon.Address, currency ethCommon.Address, price int64) common.BundleItemWithCurrentPrice {
	return common.BundleItemWithCurrentPrice{
		BundleItem: common.BundleItem{
			ID:              "m1",
			Type:            common.MatchOneToOneOrders,
			ExchangeAddress: ethCommon.HexToAddress("0xee"),
			SellOrder: common.Order{
				Signer: signer,
				NFTs: common.NFTSet{
					{Collection: ethCommon.HexToAddress("0x1"), Tokens: []common.TokenAmount{{TokenID: big.NewInt(1)}}},
				},
			},
			BuyOrder: common.Order{
				Signer:     buyer,
				ExecParams: common.ExecParams{CurrencyAddress: currency},
			},
		},
		CurrentPrice: big.NewInt(price),
	}
}

func TestValidateBatchAllPass(t *testing.T) {
	signer := ethCommon.HexToAddress("0x5")
	buyer := ethCommon.HexToAddress("0x6")
	currency := ethCommon.HexToAddress("0x7")
	tokens := &fakeTokens{approved: true, owner: signer, allowance: big.NewInt(1000), balance: big.NewInt(1000)}
	v := New(tokens, common.ChainConfig{}, ethCommon.HexToAddress("0x8"))

	items := []common.BundleItemWithCurrentPrice{sampleItem(signer, buyer, currency, 100)}
	valid, invalid := v.ValidateBatch(context.Background(), items)
	assert.Len(t, invalid, 0)
	assert.Len(t, valid, 1)
}

func TestValidateBatchRejectsUnapproved(t *testing.T) {
	signer := ethCommon.HexToAddress("0x5")
	buyer := ethCommon.HexToAddress("0x6")
	currency := ethCommon.HexToAddress("0x7")
	tokens := &fakeTokens{approved: false, owner: signer, allowance: big.NewInt(1000), balance: big.NewInt(1000)}
	v := New(tokens, common.ChainConfig{}, ethCommon.HexToAddress("0x8"))

	items := []common.BundleItemWithCurrentPrice{sampleItem(signer, buyer, currency, 100)}
	_, invalid := v.ValidateBatch(context.Background(), items)
	require.Len(t, invalid, 1)
	assert.Equal(t, "NotApprovedToTransferToken", invalid[0].Code)
}

func TestValidateBatchRejectsWrongOwner(t *testing.T) {
	signer := ethCommon.HexToAddress("0x5")
	buyer := ethCommon.HexToAddress("0x6")
	currency := ethCommon.HexToAddress("0x7")
	other := ethCommon.HexToAddress("0x9")
	tokens := &fakeTokens{approved: true, owner: other, allowance: big.NewInt(1000), balance: big.NewInt(1000)}
	v := New(tokens, common.ChainConfig{}, ethCommon.HexToAddress("0x8"))

	items := []common.BundleItemWithCurrentPrice{sampleItem(signer, buyer, currency, 100)}
	_, invalid := v.ValidateBatch(context.Background(), items)
	require.Len(t, invalid, 1)
	assert.Equal(t, "InsufficientTokenBalance", invalid[0].Code)
}

func TestValidateBatchRejectsInsufficientAllowance(t *testing.T) {
	signer := ethCommon.HexToAddress("0x5")
	buyer := ethCommon.HexToAddress("0x6")
	currency := ethCommon.HexToAddress("0x7")
	tokens := &fakeTokens{approved: true, owner: signer, allowance: big.NewInt(1), balance: big.NewInt(1000)}
	v := New(tokens, common.ChainConfig{}, ethCommon.HexToAddress("0x8"))

	items := []common.BundleItemWithCurrentPrice{sampleItem(signer, buyer, currency, 100)}
	_, invalid := v.ValidateBatch(context.Background(), items)
	require.Len(t, invalid, 1)
	assert.Equal(t, "InsufficientCurrencyAllowance", invalid[0].Code)
}

func TestValidateBatchRejectsInsufficientBalance(t *testing.T) {
	signer := ethCommon.HexToAddress("0x5")
	buyer := ethCommon.HexToAddress("0x6")
	currency := ethCommon.HexToAddress("0x7")
	tokens := &fakeTokens{approved: true, owner: signer, allowance: big.NewInt(1000), balance: big.NewInt(1)}
	v := New(tokens, common.ChainConfig{}, ethCommon.HexToAddress("0x8"))

	items := []common.BundleItemWithCurrentPrice{sampleItem(signer, buyer, currency, 100)}
	_, invalid := v.ValidateBatch(context.Background(), items)
	require.Len(t, invalid, 1)
	assert.Equal(t, "InsufficientCurrencyBalance", invalid[0].Code)
}

func TestValidateBatchDedupesCurrencyAgainstWrappedNative(t *testing.T) {
	signer := ethCommon.HexToAddress("0x5")
	buyer := ethCommon.HexToAddress("0x6")
	wrapped := ethCommon.HexToAddress("0x7")
	calls := 0
	tokens := &countingTokens{fakeTokens: fakeTokens{approved: true, owner: signer, allowance: big.NewInt(1000), balance: big.NewInt(1000)}, calls: &calls}
	v := New(tokens, common.ChainConfig{}, wrapped)

	items := []common.BundleItemWithCurrentPrice{sampleItem(signer, buyer, wrapped, 100)}
	_, invalid := v.ValidateBatch(context.Background(), items)
	assert.Len(t, invalid, 0)
	assert.Equal(t, 1, calls, "orderCurrency == wrappedNative should be checked once, not twice")
}

type countingTokens struct {
	fakeTokens
	calls *int
}

func (c *countingTokens) Allowance(ctx context.Context, token, owner, spender ethCommon.Address) (*big.Int, error) {
	*c.calls++
	return c.fakeTokens.Allowance(ctx, token, owner, spender)
}

package eth

import (
	"context"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"

	"ordermatch-pipeline/common"
)

const erc20ABIJSON = `[
	{"type":"function","name":"allowance","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]}
]`

const erc721ABIJSON = `[
	{"type":"function","name":"isApprovedForAll","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"ownerOf","stateMutability":"view",
		"inputs":[{"name":"tokenId","type":"uint256"}],
		"outputs":[{"name":"","type":"address"}]}
]`

var erc20ABI, erc721ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("eth: invalid embedded erc20 ABI: " + err.Error())
	}
	erc721ABI, err = abi.JSON(strings.NewReader(erc721ABIJSON))
	if err != nil {
		panic("eth: invalid embedded erc721 ABI: " + err.Error())
	}
}

// TokenClient issues the ERC20/ERC721 read calls the asset validator needs:
// currency allowance/balance on the buyer side, NFT operator approval and
// ownership on the seller side.
type TokenClient struct {
	client EthereumInterface
}

// NewTokenClient wraps an EthereumInterface for ERC20/ERC721 reads.
func NewTokenClient(client EthereumInterface) *TokenClient {
	return &TokenClient{client: client}
}

func (t *TokenClient) call(ctx context.Context, token ethCommon.Address, data []byte) ([]byte, error) {
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return out, nil
}

// Allowance returns the ERC20 allowance owner has granted to spender on
// token.
func (t *TokenClient) Allowance(ctx context.Context, token, owner, spender ethCommon.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, common.Wrap(err)
	}
	out, err := t.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	results, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return results[0].(*big.Int), nil
}

// BalanceOf returns account's ERC20 balance of token.
func (t *TokenClient) BalanceOf(ctx context.Context, token, account ethCommon.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, common.Wrap(err)
	}
	out, err := t.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return results[0].(*big.Int), nil
}

// IsApprovedForAll reports whether operator is approved to transfer all of
// owner's tokens in the ERC721 collection.
func (t *TokenClient) IsApprovedForAll(ctx context.Context, collection, owner, operator ethCommon.Address) (bool, error) {
	data, err := erc721ABI.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false, common.Wrap(err)
	}
	out, err := t.call(ctx, collection, data)
	if err != nil {
		return false, err
	}
	results, err := erc721ABI.Unpack("isApprovedForAll", out)
	if err != nil {
		return false, common.Wrap(err)
	}
	return results[0].(bool), nil
}

// OwnerOf returns the current owner of tokenId in the ERC721 collection.
func (t *TokenClient) OwnerOf(ctx context.Context, collection ethCommon.Address, tokenID *big.Int) (ethCommon.Address, error) {
	data, err := erc721ABI.Pack("ownerOf", tokenID)
	if err != nil {
		return ethCommon.Address{}, common.Wrap(err)
	}
	out, err := t.call(ctx, collection, data)
	if err != nil {
		return ethCommon.Address{}, err
	}
	results, err := erc721ABI.Unpack("ownerOf", out)
	if err != nil {
		return ethCommon.Address{}, common.Wrap(err)
	}
	return results[0].(ethCommon.Address), nil
}

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

// exchangeABIJSON is the minimal ABI surface the pipeline drives: the two
// match entry points the packer encodes calldata for, and the read-only
// verifier the verifier calls before packing.
const exchangeABIJSON = `[
	{"type":"function","name":"verifyMatchOrders","stateMutability":"view",
		"inputs":[
			{"name":"sell","type":"bytes"},
			{"name":"buy","type":"bytes"}
		],
		"outputs":[{"name":"valid","type":"bool"},{"name":"currentPrice","type":"uint256"}]},
	{"type":"function","name":"matchOrders","stateMutability":"nonpayable",
		"inputs":[
			{"name":"sells","type":"bytes[]"},
			{"name":"buys","type":"bytes[]"},
			{"name":"constructed","type":"bytes[]"}
		],
		"outputs":[]},
	{"type":"function","name":"matchOneToOneOrders","stateMutability":"nonpayable",
		"inputs":[
			{"name":"sells","type":"bytes[]"},
			{"name":"buys","type":"bytes[]"}
		],
		"outputs":[]}
]`

var exchangeABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(exchangeABIJSON))
	if err != nil {
		panic("eth: invalid embedded exchange ABI: " + err.Error())
	}
	exchangeABI = parsed
}

// ExchangeClient is a read/calldata-building wrapper around the exchange
// contract, analogous to the teacher's RollupClient.
type ExchangeClient struct {
	client  EthereumInterface
	address ethCommon.Address
}

// NewExchangeClient binds an ExchangeClient to the deployed exchange
// contract at address.
func NewExchangeClient(client EthereumInterface, address ethCommon.Address) *ExchangeClient {
	return &ExchangeClient{client: client, address: address}
}

// encodeOrder ABI-encodes an order's signer, sell flag, six constraints,
// complication address and currency address, for use as the opaque bytes
// argument to verifyMatchOrders/matchOrders/matchOneToOneOrders. The NFT
// tree, extra params and signature are not part of the encoding.
func encodeOrder(o *common.Order) ([]byte, error) {
	ss := o.Constraints.ToDecimalStrings()
	constraints := make([]*big.Int, len(ss))
	for i, s := range ss {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, common.Wrap(common.ErrOrderInvalid)
		}
		constraints[i] = v
	}
	args := abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("bool")},
		{Type: mustType("uint256[6]")},
		{Type: mustType("address")},
		{Type: mustType("address")},
	}
	var constraintsFixed [6]*big.Int
	copy(constraintsFixed[:], constraints)
	packed, err := args.Pack(o.Signer, o.IsSellOrder, constraintsFixed,
		o.ExecParams.ComplicationAddress, o.ExecParams.CurrencyAddress)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return packed, nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("eth: invalid abi type " + t + ": " + err.Error())
	}
	return typ
}

// VerifyMatchOrders calls the exchange's read-only verifyMatchOrders and
// returns whether the pair is currently executable plus the contract's own
// view of currentPrice.
func (e *ExchangeClient) VerifyMatchOrders(ctx context.Context, sell, buy *common.Order) (bool, *big.Int, error) {
	sellBytes, err := encodeOrder(sell)
	if err != nil {
		return false, nil, err
	}
	buyBytes, err := encodeOrder(buy)
	if err != nil {
		return false, nil, err
	}
	data, err := exchangeABI.Pack("verifyMatchOrders", sellBytes, buyBytes)
	if err != nil {
		return false, nil, common.Wrap(err)
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.address, Data: data}, nil)
	if err != nil {
		return false, nil, common.Wrap(err)
	}
	results, err := exchangeABI.Unpack("verifyMatchOrders", out)
	if err != nil {
		return false, nil, common.Wrap(err)
	}
	valid := results[0].(bool)
	currentPrice := results[1].(*big.Int)
	return valid, currentPrice, nil
}

// EncodeMatchOrders builds calldata for a matchOrders call covering the
// given sell/buy/constructed order triples.
func (e *ExchangeClient) EncodeMatchOrders(sells, buys, constructed []*common.Order) ([]byte, error) {
	sellBytes, err := encodeOrders(sells)
	if err != nil {
		return nil, err
	}
	buyBytes, err := encodeOrders(buys)
	if err != nil {
		return nil, err
	}
	constructedBytes, err := encodeOrders(constructed)
	if err != nil {
		return nil, err
	}
	data, err := exchangeABI.Pack("matchOrders", sellBytes, buyBytes, constructedBytes)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return data, nil
}

// EncodeMatchOneToOneOrders builds calldata for a matchOneToOneOrders call.
func (e *ExchangeClient) EncodeMatchOneToOneOrders(sells, buys []*common.Order) ([]byte, error) {
	sellBytes, err := encodeOrders(sells)
	if err != nil {
		return nil, err
	}
	buyBytes, err := encodeOrders(buys)
	if err != nil {
		return nil, err
	}
	data, err := exchangeABI.Pack("matchOneToOneOrders", sellBytes, buyBytes)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return data, nil
}

func encodeOrders(orders []*common.Order) ([][]byte, error) {
	out := make([][]byte, len(orders))
	for i, o := range orders {
		b, err := encodeOrder(o)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Address returns the bound exchange contract address.
func (e *ExchangeClient) Address() ethCommon.Address {
	return e.address
}

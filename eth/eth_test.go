package eth

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethKeystore "github.com/ethereum/go-ethereum/accounts/keystore"
)

// fakeEthereumClient implements EthereumInterface for tests: CallContract
// dispatches on the 4-byte selector to a registered canned response,
// mirroring the teacher's test/ethClient.go fake.
type fakeEthereumClient struct {
	chainID   *big.Int
	responses map[[4]byte][]byte
	callErr   error
	calls     []ethereum.CallMsg
}

func newFakeEthereumClient() *fakeEthereumClient {
	return &fakeEthereumClient{
		chainID:   big.NewInt(1),
		responses: map[[4]byte][]byte{},
	}
}

func (f *fakeEthereumClient) on(selector [4]byte, response []byte) {
	f.responses[selector] = response
}

func (f *fakeEthereumClient) ChainID(ctx context.Context) (*big.Int, error) { return f.chainID, nil }
func (f *fakeEthereumClient) PendingNonceAt(ctx context.Context, account ethCommon.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeEthereumClient) NonceAt(ctx context.Context, account ethCommon.Address, blockNumber *big.Int) (uint64, error) {
	return 0, nil
}
func (f *fakeEthereumClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeEthereumClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeEthereumClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}
func (f *fakeEthereumClient) CallContract(ctx context.Context, msg ethereum.CallMsg,
	blockNumber *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.callErr != nil {
		return nil, f.callErr
	}
	var selector [4]byte
	copy(selector[:], msg.Data[:4])
	resp, ok := f.responses[selector]
	if !ok {
		return nil, nil
	}
	return resp, nil
}
func (f *fakeEthereumClient) Address() (*ethCommon.Address, error) {
	a := ethCommon.HexToAddress("0x1")
	return &a, nil
}
func (f *fakeEthereumClient) KeyStore() *ethKeystore.KeyStore { return nil }

// Package eth is the chain access layer: a thin wrapper over
// go-ethereum's ethclient plus ABI-bound calls to the exchange contract
// and to any ERC20/ERC721 token contract a validator needs to read.
package eth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethKeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"ordermatch-pipeline/common"
)

// ErrAccountNil is returned when an authorized call is attempted without a
// signing account loaded into the client.
var ErrAccountNil = fmt.Errorf("authorized calls can't be made when the account is nil")

// EthereumConfig configures call-level defaults for the EthereumClient.
type EthereumConfig struct {
	CallGasLimit uint64
}

// EthereumClient wraps an ethclient.Client with the account used to sign
// outgoing transactions, mirroring the teacher's EthereumClient.
type EthereumClient struct {
	client  *ethclient.Client
	account *accounts.Account
	ks      *ethKeystore.KeyStore
	config  EthereumConfig
}

// EthereumInterface is the subset of chain reads and signer plumbing the
// pipeline needs, kept narrow so tests can satisfy it with a fake.
type EthereumInterface interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account ethCommon.Address) (uint64, error)
	NonceAt(ctx context.Context, account ethCommon.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Address() (*ethCommon.Address, error)
	KeyStore() *ethKeystore.KeyStore
}

// NewEthereumClient builds an EthereumClient from an already-dialed
// ethclient.Client and an optional signing account.
func NewEthereumClient(client *ethclient.Client, account *accounts.Account,
	ks *ethKeystore.KeyStore, cfg EthereumConfig) *EthereumClient {
	return &EthereumClient{client: client, account: account, ks: ks, config: cfg}
}

// ChainID returns the connected network's chain id.
func (c *EthereumClient) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return chainID, nil
}

// PendingNonceAt returns the account nonce to use for the next transaction.
func (c *EthereumClient) PendingNonceAt(ctx context.Context, account ethCommon.Address) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, account)
	return nonce, common.Wrap(err)
}

// NonceAt returns the account nonce at a given block (nil for latest).
func (c *EthereumClient) NonceAt(ctx context.Context, account ethCommon.Address,
	blockNumber *big.Int) (uint64, error) {
	nonce, err := c.client.NonceAt(ctx, account, blockNumber)
	return nonce, common.Wrap(err)
}

// SuggestGasTipCap retrieves the node's suggested EIP-1559 priority fee.
func (c *EthereumClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	tip, err := c.client.SuggestGasTipCap(ctx)
	return tip, common.Wrap(err)
}

// SuggestGasPrice approximates a legacy gas price as baseFee + suggested
// tip, following the teacher's EthSuggestGasPrice.
func (c *EthereumClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, common.Wrap(fmt.Errorf("getting head: %w", err))
	}
	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, common.Wrap(fmt.Errorf("getting tip: %w", err))
	}
	return new(big.Int).Add(head.BaseFee, tip), nil
}

// EstimateGas estimates the gas a call msg would consume, the feedback
// signal the packer's recursive re-split loop is driven by.
func (c *EthereumClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.client.EstimateGas(ctx, msg)
	return gas, common.Wrap(err)
}

// CallContract runs msg as a read-only call at blockNumber (nil for
// latest), used for verifyMatchOrders, allowance, balanceOf, ownerOf and
// isApprovedForAll reads.
func (c *EthereumClient) CallContract(ctx context.Context, msg ethereum.CallMsg,
	blockNumber *big.Int) ([]byte, error) {
	result, err := c.client.CallContract(ctx, msg, blockNumber)
	return result, common.Wrap(err)
}

// Address returns the signer account's address.
func (c *EthereumClient) Address() (*ethCommon.Address, error) {
	if c.account == nil {
		return nil, common.Wrap(ErrAccountNil)
	}
	return &c.account.Address, nil
}

// KeyStore returns the keystore backing the signer account.
func (c *EthereumClient) KeyStore() *ethKeystore.KeyStore {
	return c.ks
}

// TransactOpts builds bind.TransactOpts for the signer account, for use by
// an ABI-bound contract's write methods. The caller supplies gasLimit,
// gasTipCap and gasFeeCap explicitly: the packer computes these itself
// rather than letting go-ethereum re-estimate them.
func (c *EthereumClient) TransactOpts(ctx context.Context, gasLimit uint64, gasTipCap,
	gasFeeCap *big.Int) (*bind.TransactOpts, error) {
	if c.account == nil || c.ks == nil {
		return nil, common.Wrap(ErrAccountNil)
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(c.ks, *c.account, chainID)
	if err != nil {
		return nil, common.Wrap(err)
	}
	opts.GasLimit = gasLimit
	opts.GasTipCap = gasTipCap
	opts.GasFeeCap = gasFeeCap
	return opts, nil
}

// newCallOpts returns a CallOpts with a non-zero From address. Some nodes
// mis-evaluate view calls made with the zero address; this workaround
// mirrors the teacher's newCallOpts.
func newCallOpts() *bind.CallOpts {
	return &bind.CallOpts{
		From: ethCommon.HexToAddress("0x0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f"),
	}
}

// TransactionReceipt returns the receipt for a submitted transaction hash.
func (c *EthereumClient) TransactionReceipt(ctx context.Context,
	txHash ethCommon.Hash) (*types.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	return receipt, common.Wrap(err)
}

// SendTransaction broadcasts a signed transaction.
func (c *EthereumClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return common.Wrap(c.client.SendTransaction(ctx, tx))
}

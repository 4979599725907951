package eth

import (
	"github.com/ethereum/go-ethereum/accounts"
	ethKeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ClientInterface is the chain-read and signer surface of a Client. The
// exchange and ERC20/ERC721 reads are reached through Client's Exchange and
// Token fields, not through this interface.
type ClientInterface interface {
	EthereumInterface
}

// Client bundles an EthereumClient with the contract-specific clients bound
// to it, the way the teacher's Client embeds EthereumClient and
// RollupClient.
type Client struct {
	EthereumClient
	Exchange *ExchangeClient
	Token    *TokenClient
}

// ClientConfig is the configuration needed to build a Client for one chain.
type ClientConfig struct {
	Ethereum        EthereumConfig
	ExchangeAddress ethCommon.Address
}

// NewClient dials nothing itself; it wraps an already-connected
// ethclient.Client into a full Client bound to the given exchange address.
func NewClient(client *ethclient.Client, account *accounts.Account,
	ks *ethKeystore.KeyStore, cfg ClientConfig) *Client {
	ethereumClient := NewEthereumClient(client, account, ks, cfg.Ethereum)
	return &Client{
		EthereumClient: *ethereumClient,
		Exchange:       NewExchangeClient(ethereumClient, cfg.ExchangeAddress),
		Token:          NewTokenClient(ethereumClient),
	}
}

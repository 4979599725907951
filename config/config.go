package config

import (
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// defaultValues is the TOML-encoded baseline every field starts from
// before the optional file and environment layers are applied, following
// the teacher's embedded-default-string convention.
const defaultValues = `
[Pipeline]
MaxGasLimit = 8000000
GasHeadroomNum = 12
GasHeadroomDen = 10
PriceHeadroomNum = 11
PriceHeadroomDen = 10
MinBundleSize = 1
RPCTimeoutSeconds = 30
SubscriptionRetryBaseMillis = 500
SubscriptionRetryMaxMillis = 30000

[Log]
Level = "info"

[API]
Addr = "0.0.0.0:8080"
`

// Pipeline holds the chain-agnostic tuning knobs enumerated in spec.md §6.
type Pipeline struct {
	MaxGasLimit                 uint64 `env:"PIPELINE_MAX_GAS_LIMIT"`
	GasHeadroomNum              uint64 `env:"PIPELINE_GAS_HEADROOM_NUM"`
	GasHeadroomDen              uint64 `env:"PIPELINE_GAS_HEADROOM_DEN"`
	PriceHeadroomNum            uint64 `env:"PIPELINE_PRICE_HEADROOM_NUM"`
	PriceHeadroomDen            uint64 `env:"PIPELINE_PRICE_HEADROOM_DEN"`
	MinBundleSize               int    `env:"PIPELINE_MIN_BUNDLE_SIZE"`
	RPCTimeoutSeconds           int    `env:"PIPELINE_RPC_TIMEOUT_SECONDS"`
	SubscriptionRetryBaseMillis int    `env:"PIPELINE_SUBSCRIPTION_RETRY_BASE_MILLIS"`
	SubscriptionRetryMaxMillis  int    `env:"PIPELINE_SUBSCRIPTION_RETRY_MAX_MILLIS"`
}

// Chain is one entry of the per-chain configuration named in spec.md §6.
type Chain struct {
	ChainID              int64  `toml:"ChainID" env:"CHAIN_ID"`
	ExchangeAddress      string `toml:"ExchangeAddress" env:"CHAIN_EXCHANGE_ADDRESS"`
	WrappedNativeAddress string `toml:"WrappedNativeAddress" env:"CHAIN_WRAPPED_NATIVE_ADDRESS"`
	RPCURL               string `toml:"RPCURL" env:"CHAIN_RPC_URL"`
	SignerAddress        string `toml:"SignerAddress" env:"CHAIN_SIGNER_ADDRESS"`
	KeystorePath         string `toml:"KeystorePath" env:"CHAIN_KEYSTORE_PATH"`
	KeystorePassword     string `toml:"KeystorePassword" env:"CHAIN_KEYSTORE_PASSWORD"`
	// GasOracleURL, when set, is consulted by the packer as a secondary
	// sanity bound on the node's own SuggestGasTipCap. Empty disables it.
	GasOracleURL    string `toml:"GasOracleURL" env:"CHAIN_GAS_ORACLE_URL"`
	GasOracleAPIKey string `toml:"GasOracleAPIKey" env:"CHAIN_GAS_ORACLE_API_KEY"`
}

// Log configures the log package on startup.
type Log struct {
	Level string `env:"LOG_LEVEL"`
}

// API configures the ambient /health and /metrics HTTP surface.
type API struct {
	Addr string `env:"API_ADDR"`
}

// Database configures the matchstore's Postgres connection.
type Database struct {
	URL string `toml:"URL" env:"DATABASE_URL"`
}

// Node is the full process configuration loaded by cmd/ordermatchd, mirroring
// the teacher's top-level Node config struct: one struct per concern,
// nested, loaded in one Load call.
type Node struct {
	Pipeline Pipeline
	Chains   []Chain
	Log      Log
	API      API
	Database Database
}

// LoadNode loads Node from the embedded defaults, an optional TOML file,
// then environment variables, in that order of increasing priority.
func LoadNode(filePath string) (*Node, error) {
	var cfg Node
	if err := Load(filePath, defaultValues, &cfg); err != nil {
		return nil, err
	}
	// env.Parse does not descend into nested struct fields, so each
	// env-tagged section is parsed on its own.
	for _, section := range []interface{}{&cfg.Pipeline, &cfg.Log, &cfg.API, &cfg.Database} {
		if err := loadEnv(section); err != nil {
			return nil, fmt.Errorf("error loading environment variables: %w", err)
		}
	}
	return &cfg, nil
}

// ChainIDBig parses ChainID into a *big.Int for use against common.Order's
// ChainID field.
func (c Chain) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

// ExchangeAddr parses ExchangeAddress as an Ethereum address.
func (c Chain) ExchangeAddr() ethCommon.Address {
	return ethCommon.HexToAddress(c.ExchangeAddress)
}

// WrappedNativeAddr parses WrappedNativeAddress as an Ethereum address.
func (c Chain) WrappedNativeAddr() ethCommon.Address {
	return ethCommon.HexToAddress(c.WrappedNativeAddress)
}

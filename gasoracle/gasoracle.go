// Package gasoracle is a secondary gas-price source consulted as a sanity
// bound alongside the node's own SuggestGasTipCap, adapted from the
// teacher's etherscan-backed oracle service.
package gasoracle

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/dghubble/sling"

	"ordermatch-pipeline/common"
)

const (
	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 2 * time.Second
)

type apiResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Result  GasPriceGwei `json:"result"`
}

// GasPriceGwei is the gas oracle's reported price tiers, in gwei.
type GasPriceGwei struct {
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
}

// Client is the interface to an external gas-price oracle.
type Client interface {
	GetGasPrice(ctx context.Context) (*GasPriceGwei, error)
}

// Service is a sling-backed Client for an Etherscan-shaped gas oracle API.
type Service struct {
	http   *sling.Sling
	apiKey string
}

// New builds a Service against baseURL (e.g. an Etherscan-compatible gas
// oracle endpoint) authenticated with apiKey.
func New(baseURL, apiKey string) *Service {
	tr := &http.Transport{
		MaxIdleConns:       defaultMaxIdleConns,
		IdleConnTimeout:    defaultIdleConnTimeout,
		DisableCompression: true,
	}
	httpClient := &http.Client{Transport: tr}
	return &Service{
		http:   sling.New().Base(baseURL).Client(httpClient),
		apiKey: apiKey,
	}
}

// GetGasPrice fetches the current gas price tiers.
func (s *Service) GetGasPrice(ctx context.Context) (*GasPriceGwei, error) {
	var resp apiResponse
	req := s.http.New().Get("api").QueryStruct(struct {
		Module  string `url:"module"`
		Action  string `url:"action"`
		APIKey  string `url:"apikey"`
	}{Module: "gastracker", Action: "gasoracle", APIKey: s.apiKey})

	httpReq, err := req.Request()
	if err != nil {
		return nil, common.Wrap(err)
	}
	httpReq = httpReq.WithContext(ctx)

	if _, err := s.http.Do(httpReq, &resp, nil); err != nil {
		return nil, common.Wrap(err)
	}
	if resp.Status != "1" {
		return nil, common.Wrap(fmt.Errorf("gasoracle: %s", resp.Message))
	}
	return &resp.Result, nil
}

// ProposeGasPriceWei parses ProposeGasPrice (gwei, decimal string) into wei.
func (g *GasPriceGwei) ProposeGasPriceWei() (*big.Int, error) {
	gwei, ok := new(big.Int).SetString(g.ProposeGasPrice, 10)
	if !ok {
		return nil, common.Wrap(fmt.Errorf("gasoracle: not a decimal integer: %q", g.ProposeGasPrice))
	}
	return new(big.Int).Mul(gwei, big.NewInt(1_000_000_000)), nil
}

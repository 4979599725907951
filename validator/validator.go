// Package validator implements the Asset Validator (C4): independent
// seller-ownership/approval and buyer-allowance/balance passes over a
// verified batch of bundle items.
package validator

import (
	"context"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/log"
)

// TokenReader is the ERC20/ERC721 read surface the validator needs.
type TokenReader interface {
	Allowance(ctx context.Context, token, owner, spender ethCommon.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, account ethCommon.Address) (*big.Int, error)
	IsApprovedForAll(ctx context.Context, collection, owner, operator ethCommon.Address) (bool, error)
	OwnerOf(ctx context.Context, collection ethCommon.Address, tokenID *big.Int) (ethCommon.Address, error)
}

// Rejection is a typed, item-attributed failure.
type Rejection struct {
	Item    common.BundleItemWithCurrentPrice
	Code    string
	Message string
}

// Validator runs C4 over a batch of priced, verified bundle items.
type Validator struct {
	tokens        TokenReader
	chainConfig   common.ChainConfig
	wrappedNative ethCommon.Address
}

// New builds a Validator bound to an exchange deployment's chain
// configuration and wrapped-native currency address (txnCurrency(chainId)
// in spec.md §4.4).
func New(tokens TokenReader, chainConfig common.ChainConfig, wrappedNative ethCommon.Address) *Validator {
	return &Validator{tokens: tokens, chainConfig: chainConfig, wrappedNative: wrappedNative}
}

// ValidateBatch fuses the seller and buyer passes across every item
// concurrently, per spec.md §4.4 ("ordering between the passes is
// arbitrary; they can be fused").
func (v *Validator) ValidateBatch(ctx context.Context, items []common.BundleItemWithCurrentPrice) (
	valid []common.BundleItemWithCurrentPrice, invalid []Rejection) {

	rejections := make([]*Rejection, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i := range items {
		i := i
		item := items[i]
		g.Go(func() error {
			if rej := v.validateSeller(gctx, item); rej != nil {
				rejections[i] = rej
				return nil
			}
			if rej := v.validateBuyer(gctx, item); rej != nil {
				rejections[i] = rej
				return nil
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range items {
		if rejections[i] != nil {
			invalid = append(invalid, *rejections[i])
			continue
		}
		valid = append(valid, items[i])
	}
	return valid, invalid
}

func sellerNFTs(item common.BundleItemWithCurrentPrice) common.NFTSet {
	if item.Type == common.MatchOrders && item.Constructed != nil {
		return item.Constructed.NFTs
	}
	return item.SellOrder.NFTs
}

func (v *Validator) validateSeller(ctx context.Context, item common.BundleItemWithCurrentPrice) *Rejection {
	signer := item.SellOrder.Signer
	for _, col := range sellerNFTs(item) {
		approved, err := v.tokens.IsApprovedForAll(ctx, col.Collection, signer, item.ExchangeAddress)
		if err != nil {
			log.Warnw("validator: isApprovedForAll failed", "matchId", item.ID, "err", err)
			return &Rejection{Item: item, Code: "UnknownError", Message: err.Error()}
		}
		if !approved {
			return &Rejection{Item: item, Code: "NotApprovedToTransferToken",
				Message: "exchange is not approved to transfer token"}
		}
		for _, tok := range col.Tokens {
			owner, err := v.tokens.OwnerOf(ctx, col.Collection, tok.TokenID)
			if err != nil {
				log.Warnw("validator: ownerOf failed", "matchId", item.ID, "err", err)
				return &Rejection{Item: item, Code: "UnknownError", Message: err.Error()}
			}
			if !sameAddress(owner, signer) {
				return &Rejection{Item: item, Code: "InsufficientTokenBalance",
					Message: "seller no longer owns token"}
			}
		}
	}
	return nil
}

func (v *Validator) validateBuyer(ctx context.Context, item common.BundleItemWithCurrentPrice) *Rejection {
	buyer := item.BuyOrder.Signer
	orderCurrency := item.BuyOrder.Currency()
	expectedCost := v.chainConfig.ExpectedCost(item.CurrentPrice)

	currencies := dedupeAddresses(orderCurrency, v.wrappedNative)
	for _, currency := range currencies {
		allowance, err := v.tokens.Allowance(ctx, currency, buyer, item.ExchangeAddress)
		if err != nil {
			log.Warnw("validator: allowance failed", "matchId", item.ID, "err", err)
			return &Rejection{Item: item, Code: "UnknownError", Message: err.Error()}
		}
		if allowance.Cmp(expectedCost) < 0 {
			return &Rejection{Item: item, Code: "InsufficientCurrencyAllowance",
				Message: "buyer currency allowance is insufficient"}
		}
		balance, err := v.tokens.BalanceOf(ctx, currency, buyer)
		if err != nil {
			log.Warnw("validator: balanceOf failed", "matchId", item.ID, "err", err)
			return &Rejection{Item: item, Code: "UnknownError", Message: err.Error()}
		}
		if balance.Cmp(expectedCost) < 0 {
			return &Rejection{Item: item, Code: "InsufficientCurrencyBalance",
				Message: "buyer currency balance is insufficient"}
		}
	}
	return nil
}

func sameAddress(a, b ethCommon.Address) bool {
	return a == b
}

func dedupeAddresses(addrs ...ethCommon.Address) []ethCommon.Address {
	seen := map[ethCommon.Address]bool{}
	var out []ethCommon.Address
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

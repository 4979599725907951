package common

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

func addr(b byte) ethCommon.Address {
	var a ethCommon.Address
	a[len(a)-1] = b
	return a
}

func bigFromInt(n int64) *big.Int {
	return big.NewInt(n)
}

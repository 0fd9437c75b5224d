package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatTime(ts uint64) string {
	return strconv.FormatUint(ts, 10)
}

func formatAddr(addr common.Address) string {
	return addr.Hex()
}

package web3

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// EncodeChainID renders a chain id the way wallets expect it: lowercase hex
// with a 0x prefix and no leading zeros.
func EncodeChainID(id uint64) string {
	return hexutil.EncodeUint64(id)
}

// DecodeChainID parses a hexadecimal chain id as reported by eth_chainId or
// chainChanged. The 0x prefix is optional and leading zeros are accepted.
// Zero is rejected since it is not a valid EIP-155 chain id.
func DecodeChainID(raw string) (uint64, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid chain id %q", raw)
	}
	id, ok := math.ParseUint64("0x" + s)
	if !ok {
		return 0, fmt.Errorf("invalid chain id %q", raw)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid chain id %q: zero", raw)
	}
	return id, nil
}

package events

import (
	"math/big"
	"strings"

	"stakepool/crypto"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr [20]byte) string {
	return crypto.FromRaw(addr).String()
}

func formatAddresses(addrs [][20]byte) string {
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		parts = append(parts, formatAddress(addr))
	}
	return strings.Join(parts, ",")
}

func zeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}

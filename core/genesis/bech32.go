package genesis

import (
	"fmt"

	"stakepool/crypto"
)

// ParseAccount decodes a bech32 participant or module identity.
func ParseAccount(addr string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	switch decoded.Prefix() {
	case crypto.AccountPrefix, crypto.ModulePrefix:
	default:
		return out, fmt.Errorf("decode bech32 account: unsupported hrp %q", decoded.Prefix())
	}
	return decoded.Raw(), nil
}

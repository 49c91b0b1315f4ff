package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

// DefaultPrefix is used when rendering addresses without an explicit prefix.
const DefaultPrefix AddressPrefix = "red"

// AddressLength is the raw byte length of every account or contract address.
const AddressLength = 20

// Address identifies an account or contract. The zero value is the unset
// address and never belongs to a real participant.
type Address [AddressLength]byte

// BytesToAddress copies b into an Address. Inputs must be exactly 20 bytes.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// ModuleAddress derives a deterministic address for a named module or
// contract role from the trailing 20 bytes of keccak256(name).
func ModuleAddress(name string) Address {
	var addr Address
	digest := ethcrypto.Keccak256([]byte(strings.TrimSpace(name)))
	copy(addr[:], digest[len(digest)-AddressLength:])
	return addr
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) Equal(other Address) bool { return bytes.Equal(a[:], other[:]) }

// Bech32 renders the address with the supplied human-readable prefix.
func (a Address) Bech32(prefix AddressPrefix) string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return hex.EncodeToString(a[:])
	}
	encoded, err := bech32.Encode(string(prefix), conv)
	if err != nil {
		return hex.EncodeToString(a[:])
	}
	return encoded
}

func (a Address) String() string { return a.Bech32(DefaultPrefix) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 address of any prefix.
func DecodeAddress(addrStr string) (Address, error) {
	_, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

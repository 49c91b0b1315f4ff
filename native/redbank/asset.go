package redbank

import (
	"fmt"
	"strings"

	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// AssetType distinguishes chain-native denominations from token contracts.
type AssetType uint8

const (
	AssetNative AssetType = iota
	AssetTokenized
)

func (t AssetType) String() string {
	switch t {
	case AssetNative:
		return "native"
	case AssetTokenized:
		return "tokenized"
	default:
		return fmt.Sprintf("asset_type(%d)", uint8(t))
	}
}

func (t AssetType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *AssetType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "native":
		*t = AssetNative
	case "tokenized", "token", "cw20":
		*t = AssetTokenized
	default:
		return fmt.Errorf("%w: unknown asset type %q", ErrInvalidAsset, text)
	}
	return nil
}

// Asset identifies a listed asset. Reference is the denom for native assets
// and the bech32 token address for tokenized ones.
type Asset struct {
	Type      AssetType `json:"type" toml:"type" yaml:"type"`
	Reference string    `json:"reference" toml:"reference" yaml:"reference"`
}

func NativeAsset(denom string) Asset {
	return Asset{Type: AssetNative, Reference: strings.TrimSpace(denom)}
}

func TokenAsset(addr crypto.Address) Asset {
	return Asset{Type: AssetTokenized, Reference: addr.String()}
}

// Key is the storage key for the asset's market. It carries the type so a
// denom spelled like a token address never collides with that token.
func (a Asset) Key() string { return a.Type.String() + ":" + a.Reference }

func (a Asset) String() string { return a.Type.String() + ":" + a.Reference }

func (a Asset) Validate() error {
	switch a.Type {
	case AssetNative:
		if strings.TrimSpace(a.Reference) == "" || a.Reference != strings.TrimSpace(a.Reference) {
			return fmt.Errorf("%w: empty or padded denom %q", ErrInvalidAsset, a.Reference)
		}
	case AssetTokenized:
		if _, err := crypto.DecodeAddress(a.Reference); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAsset, err)
		}
	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidAsset, a.Type)
	}
	return nil
}

// ParseAsset reads a bare reference: a bech32 address names a tokenized
// asset, anything else a native denom.
func ParseAsset(ref string) (Asset, error) {
	ref = strings.TrimSpace(ref)
	asset := NativeAsset(ref)
	if addr, err := crypto.DecodeAddress(ref); err == nil {
		asset = TokenAsset(addr)
	}
	if err := asset.Validate(); err != nil {
		return Asset{}, err
	}
	return asset, nil
}

package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// EffectKind enumerates the instructions an action hands to collaborators.
type EffectKind uint8

const (
	EffectInstantiateLiquidityToken EffectKind = iota + 1
	EffectMint
	EffectBurn
	EffectTransferOnLiquidation
	EffectTransfer
)

func (k EffectKind) String() string {
	switch k {
	case EffectInstantiateLiquidityToken:
		return "instantiate_liquidity_token"
	case EffectMint:
		return "mint"
	case EffectBurn:
		return "burn"
	case EffectTransferOnLiquidation:
		return "transfer_on_liquidation"
	case EffectTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

func (k EffectKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Effect is an instruction for the runtime. Token is the liquidity token for
// Mint, Burn and TransferOnLiquidation; Asset is the underlying for Transfer
// and InstantiateLiquidityToken. Liquidity token amounts are scaled, asset
// amounts are nominal.
type Effect struct {
	Kind   EffectKind     `json:"kind"`
	Asset  Asset          `json:"asset"`
	Token  crypto.Address `json:"token,omitempty"`
	From   crypto.Address `json:"from,omitempty"`
	To     crypto.Address `json:"to,omitempty"`
	Amount *uint256.Int   `json:"amount,omitempty"`
}

func instantiateEffect(asset Asset) Effect {
	return Effect{Kind: EffectInstantiateLiquidityToken, Asset: asset}
}

func mintEffect(m *Market, to crypto.Address, scaled *uint256.Int) Effect {
	return Effect{Kind: EffectMint, Asset: m.Asset, Token: m.LiquidityToken, To: to, Amount: numeric.CloneInt(scaled)}
}

func burnEffect(m *Market, from crypto.Address, scaled *uint256.Int) Effect {
	return Effect{Kind: EffectBurn, Asset: m.Asset, Token: m.LiquidityToken, From: from, Amount: numeric.CloneInt(scaled)}
}

func transferOnLiquidationEffect(m *Market, from, to crypto.Address, scaled *uint256.Int) Effect {
	return Effect{Kind: EffectTransferOnLiquidation, Asset: m.Asset, Token: m.LiquidityToken, From: from, To: to, Amount: numeric.CloneInt(scaled)}
}

func transferEffect(asset Asset, from, to crypto.Address, amount *uint256.Int) Effect {
	return Effect{Kind: EffectTransfer, Asset: asset, From: from, To: to, Amount: numeric.CloneInt(amount)}
}

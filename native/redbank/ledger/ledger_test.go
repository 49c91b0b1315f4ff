package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

func TestLedgerTransfersUnderlying(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	l := New(db)
	usd := redbank.NativeAsset("uusd")
	alice, bob := crypto.ModuleAddress("alice"), crypto.ModuleAddress("bob")

	require.NoError(t, l.Credit(usd, alice, uint256.NewInt(100)))
	require.NoError(t, l.Transfer(usd, alice, bob, uint256.NewInt(40)))

	got, err := l.Balance(usd, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(60), got.Uint64())
	got, err = l.Balance(usd, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(40), got.Uint64())

	err = l.Transfer(usd, bob, alice, uint256.NewInt(41))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestApplyEffects(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	l := New(db)
	usd := redbank.NativeAsset("uusd")
	contract := crypto.ModuleAddress("contract")
	alice, bob := crypto.ModuleAddress("alice"), crypto.ModuleAddress("bob")

	created, err := l.Apply([]redbank.Effect{{Kind: redbank.EffectInstantiateLiquidityToken, Asset: usd}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	token := created[0].Token
	require.Equal(t, TokenAddress(usd), token)

	asset, err := l.TokenAsset(token)
	require.NoError(t, err)
	require.Equal(t, usd, asset)

	require.NoError(t, l.Credit(usd, contract, uint256.NewInt(500)))
	_, err = l.Apply([]redbank.Effect{
		{Kind: redbank.EffectMint, Token: token, To: alice, Amount: uint256.NewInt(300)},
		{Kind: redbank.EffectTransferOnLiquidation, Token: token, From: alice, To: bob, Amount: uint256.NewInt(100)},
		{Kind: redbank.EffectBurn, Token: token, From: bob, Amount: uint256.NewInt(50)},
		{Kind: redbank.EffectTransfer, Asset: usd, From: contract, To: bob, Amount: uint256.NewInt(50)},
	})
	require.NoError(t, err)

	for holder, want := range map[crypto.Address]uint64{alice: 200, bob: 50} {
		got, err := l.BalanceOf(token, holder)
		require.NoError(t, err)
		require.Equal(t, want, got.Uint64())
	}
	supply, err := l.TotalSupply(token)
	require.NoError(t, err)
	require.Equal(t, uint64(250), supply.Uint64())
	paid, err := l.Balance(usd, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(50), paid.Uint64())

	_, err = l.Apply([]redbank.Effect{{Kind: redbank.EffectBurn, Token: token, From: bob, Amount: uint256.NewInt(51)}})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = l.BalanceOf(crypto.ModuleAddress("nope"), alice)
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestPriceTableAndRegistry(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	prices := NewPriceTable(db)
	luna := redbank.NativeAsset("uluna")

	_, err := prices.Price(luna)
	require.ErrorIs(t, err, ErrPriceNotFound)
	require.NoError(t, prices.SetPrice(luna, numeric.MustParseDecimal("12.5")))
	price, err := prices.Price(luna)
	require.NoError(t, err)
	require.Equal(t, "12.5", price.String())

	reg := StaticRegistry{redbank.RoleTreasury: crypto.ModuleAddress("treasury")}
	addr, err := reg.Resolve(redbank.RoleTreasury)
	require.NoError(t, err)
	require.Equal(t, crypto.ModuleAddress("treasury"), addr)
	_, err = reg.Resolve(redbank.RoleStaking)
	require.ErrorIs(t, err, ErrRoleNotFound)
}

// Package ledger holds reference implementations of the red bank's external
// collaborators: underlying asset balances, liquidity token ledgers, a price
// table oracle and a role registry. All balances live in a storage.Database
// so they share the caller's transaction.
package ledger

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrUnknownToken        = errors.New("ledger: unknown liquidity token")
	ErrPriceNotFound       = errors.New("ledger: price not found")
	ErrRoleNotFound        = errors.New("ledger: role not configured")
)

var (
	balancePrefix      = []byte("ledger:balance:")
	tokenBalancePrefix = []byte("ledger:token-balance:")
	tokenSupplyPrefix  = []byte("ledger:token-supply:")
	tokenAssetPrefix   = []byte("ledger:token-asset:")
	pricePrefix        = []byte("ledger:price:")
)

func key(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

// Ledger tracks underlying balances and liquidity token balances.
type Ledger struct {
	db storage.Database
}

func New(db storage.Database) *Ledger { return &Ledger{db: db} }

func (l *Ledger) readInt(k []byte) (*uint256.Int, error) {
	data, err := l.db.Get(k)
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	out := new(uint256.Int)
	if err := rlp.DecodeBytes(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) writeInt(k []byte, v *uint256.Int) error {
	encoded, err := rlp.EncodeToBytes(numeric.CloneInt(v))
	if err != nil {
		return err
	}
	return l.db.Put(k, encoded)
}

func (l *Ledger) adjust(k []byte, delta *uint256.Int, credit bool) error {
	current, err := l.readInt(k)
	if err != nil {
		return err
	}
	var next *uint256.Int
	if credit {
		next, err = numeric.CheckedAdd(current, delta)
	} else {
		next, err = numeric.CheckedSub(current, delta)
		if errors.Is(err, numeric.ErrUnderflow) {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, current.Dec(), numeric.CloneInt(delta).Dec())
		}
	}
	if err != nil {
		return err
	}
	return l.writeInt(k, next)
}

func balanceKey(asset redbank.Asset, holder crypto.Address) []byte {
	return key(balancePrefix, []byte(asset.Key()), holder[:])
}

// Balance implements redbank.AssetBalances.
func (l *Ledger) Balance(asset redbank.Asset, holder crypto.Address) (*uint256.Int, error) {
	return l.readInt(balanceKey(asset, holder))
}

func (l *Ledger) Credit(asset redbank.Asset, holder crypto.Address, amount *uint256.Int) error {
	return l.adjust(balanceKey(asset, holder), amount, true)
}

func (l *Ledger) Debit(asset redbank.Asset, holder crypto.Address, amount *uint256.Int) error {
	return l.adjust(balanceKey(asset, holder), amount, false)
}

// Transfer moves underlying funds between holders.
func (l *Ledger) Transfer(asset redbank.Asset, from, to crypto.Address, amount *uint256.Int) error {
	if err := l.Debit(asset, from, amount); err != nil {
		return err
	}
	return l.Credit(asset, to, amount)
}

// TokenAddress is the deterministic liquidity token address for asset.
func TokenAddress(asset redbank.Asset) crypto.Address {
	return crypto.ModuleAddress("liquidity-token:" + asset.Key())
}

// InstantiateToken registers the liquidity token for asset and returns its
// address.
func (l *Ledger) InstantiateToken(asset redbank.Asset) (crypto.Address, error) {
	token := TokenAddress(asset)
	encoded, err := rlp.EncodeToBytes(&asset)
	if err != nil {
		return crypto.Address{}, err
	}
	if err := l.db.Put(key(tokenAssetPrefix, token[:]), encoded); err != nil {
		return crypto.Address{}, err
	}
	return token, nil
}

// TokenAsset returns the underlying asset of a registered liquidity token.
func (l *Ledger) TokenAsset(token crypto.Address) (redbank.Asset, error) {
	data, err := l.db.Get(key(tokenAssetPrefix, token[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return redbank.Asset{}, ErrUnknownToken
	}
	if err != nil {
		return redbank.Asset{}, err
	}
	var asset redbank.Asset
	if err := rlp.DecodeBytes(data, &asset); err != nil {
		return redbank.Asset{}, err
	}
	return asset, nil
}

func (l *Ledger) requireToken(token crypto.Address) error {
	_, err := l.TokenAsset(token)
	return err
}

// BalanceOf implements redbank.LiquidityTokens.
func (l *Ledger) BalanceOf(token, holder crypto.Address) (*uint256.Int, error) {
	if err := l.requireToken(token); err != nil {
		return nil, err
	}
	return l.readInt(key(tokenBalancePrefix, token[:], holder[:]))
}

func (l *Ledger) TotalSupply(token crypto.Address) (*uint256.Int, error) {
	if err := l.requireToken(token); err != nil {
		return nil, err
	}
	return l.readInt(key(tokenSupplyPrefix, token[:]))
}

func (l *Ledger) Mint(token, to crypto.Address, amount *uint256.Int) error {
	if err := l.requireToken(token); err != nil {
		return err
	}
	if err := l.adjust(key(tokenBalancePrefix, token[:], to[:]), amount, true); err != nil {
		return err
	}
	return l.adjust(key(tokenSupplyPrefix, token[:]), amount, true)
}

func (l *Ledger) Burn(token, from crypto.Address, amount *uint256.Int) error {
	if err := l.requireToken(token); err != nil {
		return err
	}
	if err := l.adjust(key(tokenBalancePrefix, token[:], from[:]), amount, false); err != nil {
		return err
	}
	return l.adjust(key(tokenSupplyPrefix, token[:]), amount, false)
}

// TransferToken moves scaled liquidity tokens between holders.
func (l *Ledger) TransferToken(token, from, to crypto.Address, amount *uint256.Int) error {
	if err := l.requireToken(token); err != nil {
		return err
	}
	if err := l.adjust(key(tokenBalancePrefix, token[:], from[:]), amount, false); err != nil {
		return err
	}
	return l.adjust(key(tokenBalancePrefix, token[:], to[:]), amount, true)
}

// Instantiated reports a liquidity token created while applying effects.
type Instantiated struct {
	Asset redbank.Asset
	Token crypto.Address
}

// Apply executes effects in order. Tokens created by
// InstantiateLiquidityToken effects are returned so the caller can deliver
// the activation callback.
func (l *Ledger) Apply(effects []redbank.Effect) ([]Instantiated, error) {
	var created []Instantiated
	for i, eff := range effects {
		var err error
		switch eff.Kind {
		case redbank.EffectInstantiateLiquidityToken:
			var token crypto.Address
			if token, err = l.InstantiateToken(eff.Asset); err == nil {
				created = append(created, Instantiated{Asset: eff.Asset, Token: token})
			}
		case redbank.EffectMint:
			err = l.Mint(eff.Token, eff.To, eff.Amount)
		case redbank.EffectBurn:
			err = l.Burn(eff.Token, eff.From, eff.Amount)
		case redbank.EffectTransferOnLiquidation:
			err = l.TransferToken(eff.Token, eff.From, eff.To, eff.Amount)
		case redbank.EffectTransfer:
			err = l.Transfer(eff.Asset, eff.From, eff.To, eff.Amount)
		default:
			err = fmt.Errorf("ledger: unknown effect kind %d", eff.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("ledger: effect %d (%s): %w", i, eff.Kind, err)
		}
	}
	return created, nil
}

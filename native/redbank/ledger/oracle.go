package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

// PriceTable is an oracle backed by operator-set fixed prices.
type PriceTable struct {
	db storage.Database
}

func NewPriceTable(db storage.Database) *PriceTable { return &PriceTable{db: db} }

func (p *PriceTable) SetPrice(asset redbank.Asset, price numeric.Decimal) error {
	encoded, err := rlp.EncodeToBytes(price)
	if err != nil {
		return err
	}
	return p.db.Put(key(pricePrefix, []byte(asset.Key())), encoded)
}

// Price implements redbank.Oracle.
func (p *PriceTable) Price(asset redbank.Asset) (numeric.Decimal, error) {
	data, err := p.db.Get(key(pricePrefix, []byte(asset.Key())))
	if errors.Is(err, storage.ErrNotFound) {
		return numeric.Decimal{}, fmt.Errorf("%w: %s", ErrPriceNotFound, asset)
	}
	if err != nil {
		return numeric.Decimal{}, err
	}
	var price numeric.Decimal
	if err := rlp.DecodeBytes(data, &price); err != nil {
		return numeric.Decimal{}, err
	}
	return price, nil
}

// StaticRegistry resolves roles from a fixed map.
type StaticRegistry map[redbank.Role]crypto.Address

// Resolve implements redbank.Registry.
func (r StaticRegistry) Resolve(role redbank.Role) (crypto.Address, error) {
	addr, ok := r[role]
	if !ok || addr.IsZero() {
		return crypto.Address{}, fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	return addr, nil
}

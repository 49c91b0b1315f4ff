package state

import (
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

var (
	redbankConfigKey         = ethcrypto.Keccak256([]byte("redbank:config"))
	redbankGlobalKey         = ethcrypto.Keccak256([]byte("redbank:global"))
	redbankMarketPrefix      = []byte("redbank:market:")
	redbankMarketIndexPrefix = []byte("redbank:market-index:")
	redbankMarketTokenPrefix = []byte("redbank:market-token:")
	redbankUserPrefix        = []byte("redbank:user:")
	redbankDebtPrefix        = []byte("redbank:debt:")
	redbankLimitPrefix       = []byte("redbank:uncollateralized-limit:")
)

func namespacedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func marketKey(key string) []byte { return namespacedKey(redbankMarketPrefix, []byte(key)) }

func marketIndexKey(index uint32) []byte {
	return namespacedKey(redbankMarketIndexPrefix, []byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)})
}

func marketTokenKey(token crypto.Address) []byte {
	return namespacedKey(redbankMarketTokenPrefix, token[:])
}

func userKey(addr crypto.Address) []byte { return namespacedKey(redbankUserPrefix, addr[:]) }

func debtKey(key string, addr crypto.Address) []byte {
	return namespacedKey(redbankDebtPrefix, []byte(key), addr[:])
}

func limitKey(key string, addr crypto.Address) []byte {
	return namespacedKey(redbankLimitPrefix, []byte(key), addr[:])
}

// RedBankBackend persists red bank records in a key-value database. Each
// transaction buffers its writes in a storage.CacheDB.
type RedBankBackend struct {
	db storage.Database
}

func NewRedBankBackend(db storage.Database) *RedBankBackend {
	return &RedBankBackend{db: db}
}

func (b *RedBankBackend) Begin() (redbank.Tx, error) {
	if b == nil || b.db == nil {
		return nil, redbank.ErrNilState
	}
	return &RedBankStore{db: storage.NewCacheDB(b.db)}, nil
}

// RedBankStore implements the engine's typed accessors over rlp-encoded
// values under keccak-hashed keys.
type RedBankStore struct {
	db *storage.CacheDB
}

func (s *RedBankStore) Commit() error { return s.db.Write() }

func (s *RedBankStore) Discard() { s.db.Discard() }

func (s *RedBankStore) get(key []byte, out interface{}) (bool, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedBankStore) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

func (s *RedBankStore) Config() (*redbank.Config, bool, error) {
	cfg := new(redbank.Config)
	ok, err := s.get(redbankConfigKey, cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

func (s *RedBankStore) PutConfig(cfg *redbank.Config) error { return s.put(redbankConfigKey, cfg) }

func (s *RedBankStore) GlobalState() (*redbank.GlobalState, error) {
	global := new(redbank.GlobalState)
	if _, err := s.get(redbankGlobalKey, global); err != nil {
		return nil, err
	}
	return global, nil
}

func (s *RedBankStore) PutGlobalState(g *redbank.GlobalState) error {
	return s.put(redbankGlobalKey, g)
}

func (s *RedBankStore) Market(key string) (*redbank.Market, bool, error) {
	m := new(redbank.Market)
	ok, err := s.get(marketKey(key), m)
	if err != nil || !ok {
		return nil, false, err
	}
	m.DebtTotalScaled = numeric.CloneInt(m.DebtTotalScaled)
	m.ProtocolIncomeToDistribute = numeric.CloneInt(m.ProtocolIncomeToDistribute)
	return m, true, nil
}

func (s *RedBankStore) PutMarket(m *redbank.Market) error {
	key := m.Asset.Key()
	if err := s.put(marketKey(key), m); err != nil {
		return err
	}
	if err := s.put(marketIndexKey(m.Index), key); err != nil {
		return err
	}
	if m.IsActive() && !m.LiquidityToken.IsZero() {
		return s.put(marketTokenKey(m.LiquidityToken), key)
	}
	return nil
}

func (s *RedBankStore) MarketKeyByIndex(index uint32) (string, bool, error) {
	var key string
	ok, err := s.get(marketIndexKey(index), &key)
	return key, ok, err
}

func (s *RedBankStore) MarketKeyByToken(token crypto.Address) (string, bool, error) {
	var key string
	ok, err := s.get(marketTokenKey(token), &key)
	return key, ok, err
}

func (s *RedBankStore) User(addr crypto.Address) (*redbank.User, bool, error) {
	u := new(redbank.User)
	ok, err := s.get(userKey(addr), u)
	if err != nil || !ok {
		return nil, false, err
	}
	return u, true, nil
}

func (s *RedBankStore) PutUser(addr crypto.Address, u *redbank.User) error {
	return s.put(userKey(addr), u)
}

func (s *RedBankStore) Debt(key string, addr crypto.Address) (*redbank.Debt, bool, error) {
	d := new(redbank.Debt)
	ok, err := s.get(debtKey(key, addr), d)
	if err != nil || !ok {
		return nil, false, err
	}
	d.AmountScaled = numeric.CloneInt(d.AmountScaled)
	return d, true, nil
}

func (s *RedBankStore) PutDebt(key string, addr crypto.Address, d *redbank.Debt) error {
	return s.put(debtKey(key, addr), &redbank.Debt{
		AmountScaled:     numeric.CloneInt(d.AmountScaled),
		Uncollateralized: d.Uncollateralized,
	})
}

// UncollateralizedLoanLimit returns zero when no limit was ever set.
func (s *RedBankStore) UncollateralizedLoanLimit(key string, addr crypto.Address) (*uint256.Int, error) {
	limit := new(uint256.Int)
	if _, err := s.get(limitKey(key, addr), limit); err != nil {
		return nil, err
	}
	return limit, nil
}

func (s *RedBankStore) PutUncollateralizedLoanLimit(key string, addr crypto.Address, limit *uint256.Int) error {
	return s.put(limitKey(key, addr), numeric.CloneInt(limit))
}

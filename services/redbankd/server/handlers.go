package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/events"
	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
)

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: %s required", errBadRequest, field)
	}
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return amount, nil
}

// optionalAmount returns nil for an empty field.
func optionalAmount(field, raw string) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

// optionalAddress returns the zero address for an empty field.
func optionalAddress(field, raw string) (crypto.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return crypto.Address{}, nil
	}
	return parseAddress(field, raw)
}

func parseAsset(field, raw string) (redbank.Asset, error) {
	asset, err := redbank.ParseAsset(raw)
	if err != nil {
		return redbank.Asset{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return asset, nil
}

func formatAmount(x *uint256.Int) string { return numeric.CloneInt(x).Dec() }

type effectView struct {
	Kind   string `json:"kind"`
	Asset  string `json:"asset"`
	Token  string `json:"token,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount,omitempty"`
}

func newEffectView(eff redbank.Effect) effectView {
	view := effectView{
		Kind:  eff.Kind.String(),
		Asset: eff.Asset.String(),
		Token: addressOrEmpty(eff.Token),
		From:  addressOrEmpty(eff.From),
		To:    addressOrEmpty(eff.To),
	}
	if eff.Amount != nil {
		view.Amount = formatAmount(eff.Amount)
	}
	return view
}

func addressOrEmpty(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

type tokenView struct {
	Asset string `json:"asset"`
	Token string `json:"token"`
}

type actionResponse struct {
	RequestID string         `json:"request_id"`
	Effects   []effectView   `json:"effects"`
	Events    []events.Event `json:"events"`
	Tokens    []tokenView    `json:"liquidity_tokens,omitempty"`
}

// act runs an action on behalf of the authenticated sender and writes the
// committed outcome.
func (s *Server) act(w http.ResponseWriter, r *http.Request, name string, fn func(*Session) ([]redbank.Effect, error)) {
	out, err := s.runtime.Execute(r.Context(), name, fn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := actionResponse{
		RequestID: requestID(r.Context()),
		Effects:   make([]effectView, 0, len(out.Effects)),
		Events:    out.Events,
	}
	for _, eff := range out.Effects {
		resp.Effects = append(resp.Effects, newEffectView(eff))
	}
	for _, tok := range out.Tokens {
		resp.Tokens = append(resp.Tokens, tokenView{Asset: tok.Asset.String(), Token: tok.Token.String()})
	}
	if resp.Events == nil {
		resp.Events = []events.Event{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func sender(r *http.Request) crypto.Address {
	addr, _ := senderFrom(r.Context())
	return addr
}

// Queries

func (s *Server) query(w http.ResponseWriter, r *http.Request, fn func(*Session) (interface{}, error)) {
	var out interface{}
	err := s.runtime.View(r.Context(), func(sess *Session) error {
		var err error
		out, err = fn(sess)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, func(sess *Session) (interface{}, error) {
		return sess.Engine.QueryConfig()
	})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, func(sess *Session) (interface{}, error) {
		return sess.Engine.QueryMarkets()
	})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAsset("asset", chi.URLParam(r, "asset"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.query(w, r, func(sess *Session) (interface{}, error) {
		return sess.Engine.QueryMarket(asset)
	})
}

type conversion func(e *redbank.Engine, asset redbank.Asset, amount *uint256.Int) (*uint256.Int, error)

var (
	convertScaledLiquidity     conversion = (*redbank.Engine).QueryScaledLiquidityAmount
	convertScaledDebt          conversion = (*redbank.Engine).QueryScaledDebtAmount
	convertUnderlyingLiquidity conversion = (*redbank.Engine).QueryUnderlyingLiquidityAmount
	convertUnderlyingDebt      conversion = (*redbank.Engine).QueryUnderlyingDebtAmount
)

type conversionResponse struct {
	Asset  string `json:"asset"`
	Input  string `json:"input"`
	Result string `json:"result"`
}

func (s *Server) handleConvert(fn conversion) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := parseAsset("asset", chi.URLParam(r, "asset"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.query(w, r, func(sess *Session) (interface{}, error) {
			result, err := fn(sess.Engine, asset, amount)
			if err != nil {
				return nil, err
			}
			return conversionResponse{Asset: asset.String(), Input: formatAmount(amount), Result: formatAmount(result)}, nil
		})
	}
}

func (s *Server) userParam(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, err)
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	s.query(w, r, func(sess *Session) (interface{}, error) {
		return sess.Engine.QueryUserPosition(user)
	})
}

func (s *Server) handleUserDebt(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	s.query(w, r, func(sess *Session) (interface{}, error) {
		return sess.Engine.QueryUserDebt(user)
	})
}

func (s *Server) handleUserCollateral(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	s.query(w, r, func(sess *Session) (interface{}, error) {
		return sess.Engine.QueryUserCollateral(user)
	})
}

type limitResponse struct {
	Asset string `json:"asset"`
	Limit string `json:"limit"`
}

func (s *Server) handleLimit(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	asset, err := parseAsset("asset", chi.URLParam(r, "asset"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.query(w, r, func(sess *Session) (interface{}, error) {
		limit, err := sess.Engine.QueryUncollateralizedLoanLimit(user, asset)
		if err != nil {
			return nil, err
		}
		return limitResponse{Asset: asset.String(), Limit: formatAmount(limit)}, nil
	})
}

type balanceResponse struct {
	Asset          string `json:"asset"`
	Underlying     string `json:"underlying"`
	LiquidityToken string `json:"liquidity_token,omitempty"`
	Scaled         string `json:"scaled"`
	Deposited      string `json:"deposited"`
}

// handleBalances reports the wallet balance of the underlying next to the
// holder's liquidity token balance, scaled and descaled.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	holder, ok := s.userParam(w, r)
	if !ok {
		return
	}
	asset, err := parseAsset("asset", chi.URLParam(r, "asset"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.query(w, r, func(sess *Session) (interface{}, error) {
		underlying, err := sess.Ledger.Balance(asset, holder)
		if err != nil {
			return nil, err
		}
		resp := balanceResponse{Asset: asset.String(), Underlying: formatAmount(underlying), Scaled: "0", Deposited: "0"}
		market, err := sess.Engine.QueryMarket(asset)
		if err != nil || !market.IsActive() {
			return resp, nil
		}
		scaled, err := sess.Ledger.BalanceOf(market.LiquidityToken, holder)
		if err != nil {
			return nil, err
		}
		deposited, err := sess.Engine.QueryUnderlyingLiquidityAmount(asset, scaled)
		if err != nil {
			return nil, err
		}
		resp.LiquidityToken = market.LiquidityToken.String()
		resp.Scaled = formatAmount(scaled)
		resp.Deposited = formatAmount(deposited)
		return resp, nil
	})
}

// User actions

type depositRequest struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
}

// handleDeposit moves amount from the sender's wallet into the pool and
// credits liquidity tokens to on_behalf_of (the sender by default).
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	onBehalfOf, err := optionalAddress("on_behalf_of", req.OnBehalfOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := sender(r)
	s.act(w, r, "deposit", func(sess *Session) ([]redbank.Effect, error) {
		if err := sess.Ledger.Transfer(asset, from, sess.Engine.Contract(), amount); err != nil {
			return nil, err
		}
		return sess.Engine.Deposit(from, onBehalfOf, asset, amount)
	})
}

type withdrawRequest struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := optionalAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recipient, err := optionalAddress("recipient", req.Recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := sender(r)
	s.act(w, r, "withdraw", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.Withdraw(from, asset, amount, recipient)
	})
}

type borrowRequest struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recipient, err := optionalAddress("recipient", req.Recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := sender(r)
	s.act(w, r, "borrow", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.Borrow(from, asset, amount, recipient)
	})
}

type repayRequest struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	onBehalfOf, err := optionalAddress("on_behalf_of", req.OnBehalfOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := sender(r)
	s.act(w, r, "repay", func(sess *Session) ([]redbank.Effect, error) {
		if err := sess.Ledger.Transfer(asset, from, sess.Engine.Contract(), amount); err != nil {
			return nil, err
		}
		return sess.Engine.Repay(from, onBehalfOf, asset, amount)
	})
}

type liquidateRequest struct {
	CollateralAsset       string `json:"collateral_asset"`
	DebtAsset             string `json:"debt_asset"`
	User                  string `json:"user"`
	Amount                string `json:"amount"`
	ReceiveLiquidityToken bool   `json:"receive_liquidity_token"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	collateral, err := parseAsset("collateral_asset", req.CollateralAsset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	debt, err := parseAsset("debt_asset", req.DebtAsset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	liquidator := sender(r)
	s.act(w, r, "liquidate", func(sess *Session) ([]redbank.Effect, error) {
		if err := sess.Ledger.Transfer(debt, liquidator, sess.Engine.Contract(), amount); err != nil {
			return nil, err
		}
		return sess.Engine.Liquidate(liquidator, redbank.LiquidateRequest{
			CollateralAsset:       collateral,
			DebtAsset:             debt,
			User:                  user,
			SentAmount:            amount,
			ReceiveLiquidityToken: req.ReceiveLiquidityToken,
		})
	})
}

type collateralRequest struct {
	Asset  string `json:"asset"`
	Enable bool   `json:"enable"`
}

func (s *Server) handleCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := sender(r)
	s.act(w, r, "update_collateral", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.UpdateCollateralStatus(from, asset, req.Enable)
	})
}

type transferRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// handleTransfer moves scaled liquidity tokens between holders and lets the
// red bank reconcile both positions.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := sender(r)
	s.act(w, r, "transfer_liquidity_token", func(sess *Session) ([]redbank.Effect, error) {
		market, err := sess.Engine.QueryMarket(asset)
		if err != nil {
			return nil, err
		}
		if !market.IsActive() {
			return nil, redbank.ErrMarketNotActive
		}
		token := market.LiquidityToken
		fromPrevious, err := sess.Ledger.BalanceOf(token, from)
		if err != nil {
			return nil, err
		}
		toPrevious, err := sess.Ledger.BalanceOf(token, to)
		if err != nil {
			return nil, err
		}
		if err := sess.Ledger.TransferToken(token, from, to, amount); err != nil {
			return nil, err
		}
		return sess.Engine.FinalizeLiquidityTokenTransfer(token, from, to, fromPrevious, toPrevious, amount)
	})
}

// Admin

type assetRequest struct {
	Asset  string              `json:"asset"`
	Params redbank.AssetParams `json:"params"`
}

func (s *Server) handleInitAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner := sender(r)
	s.act(w, r, "init_asset", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.InitAsset(owner, asset, req.Params)
	})
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner := sender(r)
	s.act(w, r, "update_asset", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.UpdateAsset(owner, asset, req.Params)
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update redbank.ConfigUpdate
	if err := decode(w, r, &update); err != nil {
		s.fail(w, r, err)
		return
	}
	owner := sender(r)
	s.act(w, r, "update_config", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.UpdateConfig(owner, update)
	})
}

type limitRequest struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
	Limit string `json:"limit"`
}

func (s *Server) handleUpdateLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseAmount("limit", req.Limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner := sender(r)
	s.act(w, r, "update_uncollateralized_loan_limit", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.UpdateUncollateralizedLoanLimit(owner, user, asset, limit)
	})
}

type distributeRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount,omitempty"`
}

// handleDistribute pays out protocol income. Anyone may trigger it; the
// recipients are fixed by the role registry.
func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := optionalAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.act(w, r, "distribute_income", func(sess *Session) ([]redbank.Effect, error) {
		return sess.Engine.DistributeProtocolIncome(asset, amount)
	})
}

// requireOwner rejects callers other than the configured owner for the
// operator endpoints the engine does not guard itself.
func requireOwner(sess *Session, caller crypto.Address) error {
	cfg, err := sess.Engine.QueryConfig()
	if err != nil {
		return err
	}
	if cfg.Owner != caller {
		return redbank.ErrNotOwner
	}
	return nil
}

type pricesRequest struct {
	Prices map[string]string `json:"prices"`
}

func (s *Server) handleSetPrices(w http.ResponseWriter, r *http.Request) {
	var req pricesRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	refs := make([]string, 0, len(req.Prices))
	for ref := range req.Prices {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	type quote struct {
		asset redbank.Asset
		price numeric.Decimal
	}
	quotes := make([]quote, 0, len(refs))
	for _, ref := range refs {
		asset, err := parseAsset("prices", ref)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		price, err := numeric.ParseDecimal(req.Prices[ref])
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: %s: %v", errBadRequest, ref, err))
			return
		}
		quotes = append(quotes, quote{asset: asset, price: price})
	}
	caller := sender(r)
	s.act(w, r, "set_prices", func(sess *Session) ([]redbank.Effect, error) {
		if err := requireOwner(sess, caller); err != nil {
			return nil, err
		}
		for _, q := range quotes {
			if err := sess.Prices.SetPrice(q.asset, q.price); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

type creditRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// handleCredit funds a wallet with the underlying asset.
func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAsset("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caller := sender(r)
	s.act(w, r, "credit", func(sess *Session) ([]redbank.Effect, error) {
		if err := requireOwner(sess, caller); err != nil {
			return nil, err
		}
		return nil, sess.Ledger.Credit(asset, to, amount)
	})
}

package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"creditnet/config"
	"creditnet/native/common"
	"creditnet/native/credit"
)

// Server exposes the credit ledger over HTTP. Mutating routes take the
// acting address in the request body; authorization is enforced by the
// engine, not the transport.
type Server struct {
	engine *credit.Engine
	obs    *Observability
	logger *slog.Logger
	pauses *common.Pauses
	router http.Handler
}

func NewServer(engine *credit.Engine, obs *Observability, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{engine: engine, obs: obs, logger: logger, pauses: common.NewPauses()}
	srv.router = srv.buildRouter()
	return srv
}

// Pauses exposes the node-level maintenance switch so operators can share it
// with other engines.
func (s *Server) Pauses() *common.Pauses {
	return s.pauses
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.obs != nil {
		r.Use(s.obs.Middleware("credit"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.obs != nil {
		r.Handle("/metrics", s.obs.MetricsHandler())
	}

	r.Route("/v1/credit", func(api chi.Router) {
		api.Get("/balance/{address}", s.getBalance)
		api.Get("/breakdown/{address}", s.getBreakdown)
		api.Get("/assets", s.listAssets)
		api.Get("/quote/{asset}", s.getQuote)
		api.Get("/totals", s.getTotals)
		api.Get("/params", s.getParams)

		api.Group(func(mut chi.Router) {
			mut.Use(s.maintenance(credit.ModuleName))
			mut.Post("/deposit", s.postDeposit)
			mut.Post("/withdraw", s.postWithdraw)
			mut.Post("/consume", s.postConsume)
			mut.Post("/transfer", s.postTransfer)
			mut.Post("/reclaim", s.postReclaim)
			mut.Post("/assets", s.postRegisterAsset)
			mut.Post("/assets/deregister", s.postDeregisterAsset)
			mut.Post("/relayers/authorize", s.postAuthorizeRelayer)
			mut.Post("/relayers/revoke", s.postRevokeRelayer)
			mut.Post("/params/min-consume", s.postMinConsume)
			mut.Post("/pause", s.postPause)
			mut.Post("/unpause", s.postUnpause)
			mut.Post("/drain", s.postDrain)
		})
	})

	// The maintenance toggle stays outside the guarded group so a paused
	// node can always be resumed.
	r.Post("/v1/admin/maintenance", s.postMaintenance)

	return r
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	balance, err := s.engine.CreditBalanceOf(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"credits": balance.String()})
}

func (s *Server) getBreakdown(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	buckets, err := s.engine.AssetCreditBreakdown(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entry struct {
		Asset   string `json:"asset"`
		Credits string `json:"credits"`
	}
	out := make([]entry, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, entry{Asset: formatAddress(bucket.Asset), Credits: bucket.Credits.String()})
	}
	s.writeJSON(w, out)
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.engine.ListAssets()
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entry struct {
		Asset     string `json:"asset"`
		Precision uint8  `json:"precision"`
		Mode      string `json:"mode"`
		OracleRef string `json:"oracleRef,omitempty"`
	}
	out := make([]entry, 0, len(assets))
	for _, desc := range assets {
		out = append(out, entry{
			Asset:     formatAddress(desc.Asset),
			Precision: desc.Precision,
			Mode:      desc.Mode.String(),
			OracleRef: desc.OracleRef,
		})
	}
	s.writeJSON(w, out)
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.pathAddress(w, r, "asset")
	if !ok {
		return
	}
	quote, err := s.engine.QuoteFor(asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"price":         quote.Price.String(),
		"decimals":      quote.Decimals,
		"updatedAt":     quote.UpdatedAt,
		"roundComplete": quote.RoundComplete,
	})
}

func (s *Server) getTotals(w http.ResponseWriter, r *http.Request) {
	consumed, err := s.engine.TotalConsumed()
	if err != nil {
		s.writeError(w, err)
		return
	}
	reclaimed, err := s.engine.TotalReclaimed()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{
		"consumed":  consumed.String(),
		"reclaimed": reclaimed.String(),
	})
}

func (s *Server) getParams(w http.ResponseWriter, r *http.Request) {
	threshold, err := s.engine.MinimumConsumeThreshold()
	if err != nil {
		s.writeError(w, err)
		return
	}
	paused, err := s.engine.IsPaused()
	if err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := s.engine.Owner()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"owner":      formatAddress(owner),
		"minConsume": threshold.String(),
		"paused":     paused,
	})
}

func (s *Server) postDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Asset   string `json:"asset"`
		Amount  string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	account, asset, ok := s.twoAddresses(w, req.Account, req.Asset)
	if !ok {
		return
	}
	amount, ok := s.amount(w, req.Amount)
	if !ok {
		return
	}
	credits, err := s.engine.Deposit(account, asset, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"credits": credits.String()})
}

func (s *Server) postWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Credits string `json:"credits"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	account, ok := s.address(w, req.Account)
	if !ok {
		return
	}
	credits, ok := s.amount(w, req.Credits)
	if !ok {
		return
	}
	satisfied, err := s.engine.Withdraw(account, credits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"satisfied": satisfied.String()})
}

func (s *Server) postConsume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Relayer string `json:"relayer"`
		Account string `json:"account"`
		Value   string `json:"value"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	relayer, account, ok := s.twoAddresses(w, req.Relayer, req.Account)
	if !ok {
		return
	}
	value, ok := s.amount(w, req.Value)
	if !ok {
		return
	}
	cost, err := s.engine.Consume(relayer, account, value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"cost": cost.String()})
}

func (s *Server) postTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender   string `json:"sender"`
		Receiver string `json:"receiver"`
		Credits  string `json:"credits"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sender, receiver, ok := s.twoAddresses(w, req.Sender, req.Receiver)
	if !ok {
		return
	}
	credits, ok := s.amount(w, req.Credits)
	if !ok {
		return
	}
	if err := s.engine.TransferCredit(sender, receiver, credits); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) postReclaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	reclaimed, err := s.engine.ReclaimConsumed(caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"reclaimed": reclaimed.String()})
}

func (s *Server) postRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller    string `json:"caller"`
		Asset     string `json:"asset"`
		Precision uint8  `json:"precision"`
		Mode      string `json:"mode"`
		OracleRef string `json:"oracleRef"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, asset, ok := s.twoAddresses(w, req.Caller, req.Asset)
	if !ok {
		return
	}
	mode, err := ParsePriceMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.RegisterAsset(caller, asset, req.Precision, mode, req.OracleRef); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) postDeregisterAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Asset  string `json:"asset"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, asset, ok := s.twoAddresses(w, req.Caller, req.Asset)
	if !ok {
		return
	}
	if err := s.engine.DeregisterAsset(caller, asset); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) postAuthorizeRelayer(w http.ResponseWriter, r *http.Request) {
	s.relayerUpdate(w, r, s.engine.AuthorizeRelayer)
}

func (s *Server) postRevokeRelayer(w http.ResponseWriter, r *http.Request) {
	s.relayerUpdate(w, r, s.engine.RevokeRelayer)
}

func (s *Server) relayerUpdate(w http.ResponseWriter, r *http.Request, apply func(caller, relayer [20]byte) error) {
	var req struct {
		Caller  string `json:"caller"`
		Relayer string `json:"relayer"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, relayer, ok := s.twoAddresses(w, req.Caller, req.Relayer)
	if !ok {
		return
	}
	if err := apply(caller, relayer); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) postMinConsume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller    string `json:"caller"`
		Threshold string `json:"threshold"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	threshold, ok := s.amount(w, req.Threshold)
	if !ok {
		return
	}
	if err := s.engine.SetMinimumConsumeThreshold(caller, threshold); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) postPause(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(w, r, s.engine.Pause)
}

func (s *Server) postUnpause(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(w, r, s.engine.Unpause)
}

func (s *Server) postDrain(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(w, r, s.engine.EmergencyDrain)
}

func (s *Server) ownerAction(w http.ResponseWriter, r *http.Request, apply func(caller [20]byte) error) {
	var req struct {
		Caller string `json:"caller"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	if err := apply(caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// maintenance rejects mutating requests while the named module is held in a
// node-level maintenance pause. This is an operational switch independent of
// the on-ledger pause flag.
func (s *Server) maintenance(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := common.Guard(s.pauses, module); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) postMaintenance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	owner, err := s.engine.Owner()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if caller != owner {
		s.writeError(w, credit.ErrUnauthorized)
		return
	}
	module := strings.TrimSpace(req.Module)
	if module == "" {
		module = credit.ModuleName
	}
	s.pauses.Set(module, req.Paused)
	s.writeJSON(w, map[string]interface{}{"module": module, "paused": req.Paused})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request, param string) ([20]byte, bool) {
	return s.address(w, chi.URLParam(r, param))
}

func (s *Server) address(w http.ResponseWriter, raw string) ([20]byte, bool) {
	addr, err := config.ParseAddress(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return addr, false
	}
	return addr, true
}

func (s *Server) twoAddresses(w http.ResponseWriter, first, second string) ([20]byte, [20]byte, bool) {
	a, ok := s.address(w, first)
	if !ok {
		return a, [20]byte{}, false
	}
	b, ok := s.address(w, second)
	if !ok {
		return a, b, false
	}
	return a, b, true
}

func (s *Server) amount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return nil, false
	}
	return value, true
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, credit.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, credit.ErrUnknownAsset), errors.Is(err, credit.ErrNotInitialised):
		return http.StatusNotFound
	case errors.Is(err, credit.ErrAssetExists), errors.Is(err, credit.ErrAlreadyInitialised),
		errors.Is(err, credit.ErrNonZeroBalance):
		return http.StatusConflict
	case errors.Is(err, credit.ErrPaused), errors.Is(err, credit.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, credit.ErrInsufficientCredit), errors.Is(err, credit.ErrNothingToReclaim):
		return http.StatusUnprocessableEntity
	case errors.Is(err, credit.ErrStalePrice), errors.Is(err, credit.ErrInvalidPrice):
		return http.StatusBadGateway
	case errors.Is(err, credit.ErrInvalidAmount), errors.Is(err, credit.ErrOracleRefRequired):
		return http.StatusBadRequest
	case errors.Is(err, credit.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ParsePriceMode maps the wire names "stable" and "oracle" onto price modes.
func ParsePriceMode(raw string) (credit.PriceMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "stable":
		return credit.PriceModeStable, nil
	case "oracle":
		return credit.PriceModeOracle, nil
	default:
		return 0, errors.New("mode must be \"stable\" or \"oracle\"")
	}
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

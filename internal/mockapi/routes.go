package mockapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/assist-by/cockpit/internal/domain"
)

func (s *Server) routes() *mux.Router {
	root := mux.NewRouter()
	r := root.PathPrefix(s.cfg.Prefix).Subrouter()

	r.Handle("/auth/superuser/login", s.route(RouteLogin, false, s.handleLogin)).Methods(http.MethodPost)
	r.Handle("/users/me/full", s.route(RouteMe, true, s.handleMe)).Methods(http.MethodGet)
	r.Handle("/users/me/portfolio", s.route(RoutePortfolio, true, s.handlePortfolio)).Methods(http.MethodGet)
	r.Handle("/bots/", s.route(RouteListBots, true, s.handleListBots)).Methods(http.MethodGet)
	r.Handle("/bots/", s.route(RouteCreateBot, true, s.handleCreateBot)).Methods(http.MethodPost)
	r.Handle("/bots/{id:[0-9]+}", s.route(RouteGetBot, true, s.handleGetBot)).Methods(http.MethodGet)
	r.Handle("/bots/{id:[0-9]+}/logs", s.route(RouteBotLogs, true, s.handleBotLogs)).Methods(http.MethodGet)
	r.Handle("/bots/{id:[0-9]+}/start", s.route(RouteStartBot, true, s.handleSetActive(true))).Methods(http.MethodPost)
	r.Handle("/bots/{id:[0-9]+}/stop", s.route(RouteStopBot, true, s.handleSetActive(false))).Methods(http.MethodPost)
	r.Handle("/wallet/balances", s.route(RouteBalances, true, s.handleBalances)).Methods(http.MethodGet)
	r.Handle("/wallet/transactions", s.route(RouteTransactions, true, s.handleTransactions)).Methods(http.MethodGet)
	r.Handle("/wallet/deposit/address/{asset}", s.route(RouteDepositAddress, true, s.handleDepositAddress)).Methods(http.MethodGet)

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	return root
}

// route는 호출 횟수 기록, Hold 대기, 실패 주입, 인증 확인을 핸들러 앞에 붙입니다
func (s *Server) route(name string, authRequired bool, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[name]++
		s.mu.Unlock()

		s.wait(r.Context(), name)
		if r.Context().Err() != nil {
			return
		}

		s.mu.Lock()
		f, failing := s.failures[name]
		s.mu.Unlock()
		if failing {
			writeError(w, f.status, f.message)
			return
		}

		if authRequired {
			if _, err := s.authenticate(r); err != nil {
				s.cfg.Logger.Debug("인증 실패", "route", name, "error", err)
				writeError(w, http.StatusUnauthorized, "Could not validate credentials")
				return
			}
		}

		h(w, r)
	})
}

// authenticate는 Bearer 토큰을 검증하고 사용자 이메일을 반환합니다
func (s *Server) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errors.New("missing bearer token")
	}

	s.mu.Lock()
	_, revoked := s.revoked[token]
	s.mu.Unlock()
	if revoked {
		return "", errors.New("token revoked")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if claims.Subject != s.cfg.Email {
		return "", errors.New("unknown subject")
	}
	return claims.Subject, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(req.Email)), []byte(strings.ToLower(s.cfg.Email))) == 1
	passOK := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)) == nil
	if !emailOK || !passOK {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.IssueToken(s.cfg.Email, s.cfg.TokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, domain.LoginResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.UserProfile{
		ID:          1,
		Email:       s.cfg.Email,
		FullName:    s.cfg.FullName,
		IsSuperuser: true,
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	assets := append([]domain.PortfolioAsset{}, s.portfolio...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, assets)
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	bots := make([]domain.Bot, 0, len(s.bots))
	for _, b := range s.bots {
		bots = append(bots, b.Clone())
	}
	s.mu.Unlock()

	sort.Slice(bots, func(i, j int) bool { return bots[i].ID < bots[j].ID })
	writeJSON(w, http.StatusOK, bots)
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	s.mu.Lock()
	bot := domain.Bot{
		ID:             s.nextBotID,
		Name:           req.Name,
		Symbol:         req.Symbol,
		Exchange:       req.Exchange,
		StrategyName:   req.StrategyName,
		StrategyParams: req.StrategyParams,
		IsPaperTrading: req.IsPaperTrading,
		MarketType:     req.MarketType,
		Leverage:       req.Leverage,
	}
	s.nextBotID++
	stored := bot.Clone()
	s.bots[bot.ID] = &stored
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, bot)
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}
	bot, found := s.Bot(id)
	if !found {
		writeError(w, http.StatusNotFound, "Bot not found")
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleBotLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	_, found := s.bots[id]
	logs := append([]domain.TradeLog{}, s.logs[id]...)
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "Bot not found")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := botID(w, r)
		if !ok {
			return
		}

		s.mu.Lock()
		bot, found := s.bots[id]
		if !found {
			s.mu.Unlock()
			writeError(w, http.StatusNotFound, "Bot not found")
			return
		}
		if bot.IsActive == active {
			s.mu.Unlock()
			if active {
				writeError(w, http.StatusBadRequest, "Bot is already running")
			} else {
				writeError(w, http.StatusBadRequest, "Bot is not running")
			}
			return
		}
		bot.IsActive = active
		out := bot.Clone()
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	balances := append([]domain.WalletBalance{}, s.balances...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	txs := append([]domain.Transaction{}, s.txs...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleDepositAddress(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(mux.Vars(r)["asset"])

	s.mu.Lock()
	addr, ok := s.addresses[asset]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Unsupported asset")
		return
	}
	if addr.Address == "" {
		// 자산별로 항상 같은 주소가 나오도록 이름 기반 UUID를 사용
		addr.Address = strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte("cockpit:"+asset)).String(), "-", "")
	}
	writeJSON(w, http.StatusOK, addr)
}

func botID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid bot id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body"}, "msg": message, "type": "value_error"}},
	})
}

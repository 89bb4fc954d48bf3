package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"launchpad/native/ido"
)

type projectPayload struct {
	Name                 string `json:"name"`
	StartTime            int64  `json:"startTime"`
	EndTime              int64  `json:"endTime"`
	TokenDecimals        uint8  `json:"tokenDecimals"`
	MaxAllocateAmount    string `json:"maxAllocateAmount"`
	USDPricePerTokenE6   string `json:"usdPricePerTokenE6"`
	DiscountMultiplierE4 uint32 `json:"discountMultiplierE4"`
	PayoutAddress        string `json:"payoutAddress"`
}

type projectResult struct {
	ProjectID uint64 `json:"projectId"`
	projectPayload
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	var payload projectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	maxAllocate, err := parseAmount(payload.MaxAllocateAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	usdPrice, err := parseAmount(payload.USDPricePerTokenE6)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payout, err := parseAddress(payload.PayoutAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	project := &ido.Project{
		Name:                 payload.Name,
		StartTime:            payload.StartTime,
		EndTime:              payload.EndTime,
		TokenDecimals:        payload.TokenDecimals,
		MaxAllocateAmount:    maxAllocate,
		USDPricePerTokenE6:   usdPrice,
		DiscountMultiplierE4: payload.DiscountMultiplierE4,
		PayoutAddress:        payout,
	}

	s.mu.Lock()
	id, err := s.engine.AddProject(s.cfg.Owner, project)
	if err == nil {
		s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectResult{ProjectID: id, projectPayload: payload})
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	projects, err := s.engine.Projects()
	s.mu.RUnlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	results := make([]projectResult, 0, len(projects))
	for i, p := range projects {
		results = append(results, projectResult{
			ProjectID: uint64(i),
			projectPayload: projectPayload{
				Name:                 p.Name,
				StartTime:            p.StartTime,
				EndTime:              p.EndTime,
				TokenDecimals:        p.TokenDecimals,
				MaxAllocateAmount:    formatAmount(p.MaxAllocateAmount),
				USDPricePerTokenE6:   formatAmount(p.USDPricePerTokenE6),
				DiscountMultiplierE4: p.DiscountMultiplierE4,
				PayoutAddress:        formatAddress(p.PayoutAddress),
			},
		})
	}
	writeJSON(w, http.StatusOK, results)
}

type buyStableParams struct {
	Buyer       string `json:"buyer"`
	PayToken    string `json:"payToken"`
	TokenAmount string `json:"tokenAmount"`
}

type buyNativeParams struct {
	Buyer         string `json:"buyer"`
	TokenAmount   string `json:"tokenAmount"`
	AttachedValue string `json:"attachedValue"`
}

type buyResult struct {
	ProjectID     uint64 `json:"projectId"`
	Buyer         string `json:"buyer"`
	GrantedAmount string `json:"grantedAmount"`
}

func (s *Server) handleBuyStable(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var params buyStableParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payToken, err := parseAddress(params.PayToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(params.TokenAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	granted, err := s.engine.BuyWithStable(projectID, buyer, payToken, amount)
	if err == nil {
		s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		purchaseFailures.WithLabelValues(errorLabel(err)).Inc()
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buyResult{ProjectID: projectID, Buyer: params.Buyer, GrantedAmount: formatAmount(granted)})
}

func (s *Server) handleBuyNative(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var params buyNativeParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(params.TokenAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	attached, err := parseAmount(params.AttachedValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	granted, err := s.engine.BuyWithNative(projectID, buyer, amount, attached)
	if err == nil {
		s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		purchaseFailures.WithLabelValues(errorLabel(err)).Inc()
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buyResult{ProjectID: projectID, Buyer: params.Buyer, GrantedAmount: formatAmount(granted)})
}

func (s *Server) handleNativePrice(w http.ResponseWriter, _ *http.Request) {
	price, err := s.engine.NativePriceE8()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"priceE8": formatAmount(price)})
}

func (s *Server) handleAllocated(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.RLock()
	total, err := s.engine.AllocatedAmount(projectID)
	s.mu.RUnlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"allocatedAmount": formatAmount(total)})
}

type raisedResult struct {
	Allocated    string `json:"allocatedAmount"`
	RaisedUSDC   string `json:"usdcAmount"`
	RaisedUSDT   string `json:"usdtAmount"`
	RaisedNative string `json:"astarAmount"`
}

func (s *Server) handleRaised(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.RLock()
	totals, err := s.engine.RaisedAmount(projectID)
	s.mu.RUnlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raisedResult{
		Allocated:    formatAmount(totals.Allocated),
		RaisedUSDC:   formatAmount(totals.RaisedUSDC),
		RaisedUSDT:   formatAmount(totals.RaisedUSDT),
		RaisedNative: formatAmount(totals.RaisedNative),
	})
}

type accountResult struct {
	Address     string `json:"address"`
	TokenAmount string `json:"tokenAmount"`
	PaidUSDC    string `json:"usdcAmount"`
	PaidUSDT    string `json:"usdtAmount"`
	PaidNative  string `json:"astarAmount"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.RLock()
	records, err := s.engine.AllocatedAccounts(projectID)
	s.mu.RUnlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	results := make([]accountResult, 0, len(records))
	for _, record := range records {
		results = append(results, accountResult{
			Address:     formatAddress(record.Buyer),
			TokenAmount: formatAmount(record.TokenAmount),
			PaidUSDC:    formatAmount(record.PaidUSDC),
			PaidUSDT:    formatAmount(record.PaidUSDT),
			PaidNative:  formatAmount(record.PaidNative),
		})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleUserAllocated(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.RLock()
	amount, err := s.engine.UserAllocatedAmount(projectID, user)
	s.mu.RUnlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"allocatedAmount": formatAmount(amount)})
}

type committedResult struct {
	PayToken string `json:"paidTokenAddress"`
	Amount   string `json:"amountPaid"`
}

func (s *Server) handleUserCommitted(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.RLock()
	committed, err := s.engine.UserCommittedAmounts(projectID, user)
	s.mu.RUnlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	results := make([]committedResult, 0, len(committed))
	for _, entry := range committed {
		results = append(results, committedResult{
			PayToken: formatAddress(entry.PayToken),
			Amount:   formatAmount(entry.Amount),
		})
	}
	writeJSON(w, http.StatusOK, results)
}

type mintParams struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Amount  string `json:"amount"`
}

// handleMint credits settlement balances; it exists so operators can fund
// accounts on deployments where the bank stands in for external token
// contracts.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var params mintParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if params.Token == "" {
		err = s.bank.MintNative(addr, amount)
	} else {
		var token [20]byte
		token, err = parseAddress(params.Token)
		if err == nil {
			err = s.bank.MintToken(token, addr, amount)
		}
	}
	if err == nil {
		s.commitLocked()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

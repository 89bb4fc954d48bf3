package ido

import "math/big"

// reserve is the invariant-preserving core of every purchase. It clamps the
// request to the remaining supply (partial fill), registers first-time
// participants, and bumps the buyer's allocation and the project total.
// Returns the granted amount and whether this reservation exhausted supply.
// The caller records the payment for the granted, never the requested,
// amount.
func (e *Engine) reserve(projectID uint64, project *Project, buyer [20]byte, requested *big.Int) (*big.Int, bool, error) {
	if requested == nil || requested.Sign() == 0 {
		return nil, false, ErrZeroAmount
	}
	totals, ok, err := e.state.IDOTotalsGet(projectID)
	if err != nil {
		return nil, false, err
	}
	if !ok || totals == nil {
		totals = newProjectTotals()
	}
	available := new(big.Int).Sub(project.MaxAllocateAmount, totals.Allocated)
	if available.Sign() <= 0 {
		return nil, false, ErrSoldOut
	}
	granted := new(big.Int).Set(requested)
	if granted.Cmp(available) > 0 {
		granted.Set(available)
	}

	record, ok, err := e.state.IDOAllocationGet(projectID, buyer)
	if err != nil {
		return nil, false, err
	}
	if !ok || record == nil {
		record = newAllocationRecord(buyer)
		if err := e.state.IDOParticipantAppend(projectID, buyer); err != nil {
			return nil, false, err
		}
	}
	record.TokenAmount = new(big.Int).Add(record.TokenAmount, granted)
	if err := e.state.IDOAllocationPut(projectID, record); err != nil {
		return nil, false, err
	}
	totals.Allocated = new(big.Int).Add(totals.Allocated, granted)
	if err := e.state.IDOTotalsPut(projectID, totals); err != nil {
		return nil, false, err
	}
	soldOut := available.Cmp(granted) == 0
	return granted, soldOut, nil
}

// recordPayment accumulates a settled payment onto the buyer's allocation
// record and the project's raised totals.
func (e *Engine) recordPayment(projectID uint64, buyer [20]byte, currency Currency, paid *big.Int) error {
	record, ok, err := e.state.IDOAllocationGet(projectID, buyer)
	if err != nil {
		return err
	}
	if !ok || record == nil {
		record = newAllocationRecord(buyer)
	}
	totals, ok, err := e.state.IDOTotalsGet(projectID)
	if err != nil {
		return err
	}
	if !ok || totals == nil {
		totals = newProjectTotals()
	}
	switch currency {
	case CurrencyUSDC:
		record.PaidUSDC = new(big.Int).Add(record.PaidUSDC, paid)
		totals.RaisedUSDC = new(big.Int).Add(totals.RaisedUSDC, paid)
	case CurrencyUSDT:
		record.PaidUSDT = new(big.Int).Add(record.PaidUSDT, paid)
		totals.RaisedUSDT = new(big.Int).Add(totals.RaisedUSDT, paid)
	case CurrencyNative:
		record.PaidNative = new(big.Int).Add(record.PaidNative, paid)
		totals.RaisedNative = new(big.Int).Add(totals.RaisedNative, paid)
	default:
		return ErrUnsupportedCurrency
	}
	if err := e.state.IDOAllocationPut(projectID, record); err != nil {
		return err
	}
	return e.state.IDOTotalsPut(projectID, totals)
}

// AllocatedAmount returns the total token amount allocated across all buyers
// of a project.
func (e *Engine) AllocatedAmount(projectID uint64) (*big.Int, error) {
	totals, err := e.RaisedAmount(projectID)
	if err != nil {
		return nil, err
	}
	return totals.Allocated, nil
}

// RaisedAmount returns the project's per-currency raised totals alongside the
// allocated amount. Unused currencies report zero.
func (e *Engine) RaisedAmount(projectID uint64) (*ProjectTotals, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.requireProject(projectID); err != nil {
		return nil, err
	}
	totals, ok, err := e.state.IDOTotalsGet(projectID)
	if err != nil {
		return nil, err
	}
	if !ok || totals == nil {
		totals = newProjectTotals()
	}
	return totals, nil
}

// AllocatedAccounts returns every participant's allocation record in
// participation order. Reading has no side effects.
func (e *Engine) AllocatedAccounts(projectID uint64) ([]*AllocationRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.requireProject(projectID); err != nil {
		return nil, err
	}
	participants, err := e.state.IDOParticipants(projectID)
	if err != nil {
		return nil, err
	}
	records := make([]*AllocationRecord, 0, len(participants))
	for _, buyer := range participants {
		record, ok, err := e.state.IDOAllocationGet(projectID, buyer)
		if err != nil {
			return nil, err
		}
		if !ok || record == nil {
			record = newAllocationRecord(buyer)
		}
		records = append(records, record)
	}
	return records, nil
}

// UserAllocatedAmount returns the cumulative token amount allocated to one
// user, zero (not an error) for users that never purchased.
func (e *Engine) UserAllocatedAmount(projectID uint64, user [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.requireProject(projectID); err != nil {
		return nil, err
	}
	record, ok, err := e.state.IDOAllocationGet(projectID, user)
	if err != nil {
		return nil, err
	}
	if !ok || record == nil {
		return big.NewInt(0), nil
	}
	return record.TokenAmount, nil
}

// UserCommittedAmounts returns the user's cumulative payments as a fixed
// three-entry table keyed by payment token address (USDC, USDT, then the
// zero address for the native currency). Entries default to zero; presence
// never implies a nonzero amount.
func (e *Engine) UserCommittedAmounts(projectID uint64, user [20]byte) ([]CommittedAmount, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.requireProject(projectID); err != nil {
		return nil, err
	}
	record, ok, err := e.state.IDOAllocationGet(projectID, user)
	if err != nil {
		return nil, err
	}
	if !ok || record == nil {
		record = newAllocationRecord(user)
	}
	var native [20]byte
	return []CommittedAmount{
		{PayToken: e.usdc, Amount: cloneBigInt(record.PaidUSDC)},
		{PayToken: e.usdt, Amount: cloneBigInt(record.PaidUSDT)},
		{PayToken: native, Amount: cloneBigInt(record.PaidNative)},
	}, nil
}

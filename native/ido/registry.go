package ido

import "launchpad/core/events"

// AddProject validates and appends a sale project to the registry. Only the
// configured owner may call it. The returned index is the project's permanent
// identifier; projects are never mutated or deleted afterwards.
func (e *Engine) AddProject(caller [20]byte, p *Project) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if caller != e.owner || isZeroAddress(e.owner) {
		return 0, ErrUnauthorized
	}
	if p == nil {
		return 0, ErrInvalidProjectParams
	}
	if isZeroAddress(p.PayoutAddress) {
		return 0, errPayoutAddressZero
	}
	if p.StartTime <= e.now() {
		return 0, errStartTimePassed
	}
	if p.EndTime <= p.StartTime {
		return 0, errEndBeforeStart
	}
	if p.MaxAllocateAmount == nil || p.MaxAllocateAmount.Sign() <= 0 {
		return 0, errMaxAllocateZero
	}
	if p.USDPricePerTokenE6 == nil || p.USDPricePerTokenE6.Sign() <= 0 {
		return 0, errUSDPriceZero
	}
	if p.DiscountMultiplierE4 == 0 || p.DiscountMultiplierE4 >= 10_000 {
		return 0, errDiscountOutOfRange
	}
	id, err := e.state.IDOProjectAppend(p.Clone())
	if err != nil {
		return 0, err
	}
	e.emit(events.IDOProjectAdded{ProjectID: id, Name: p.Name, Payout: p.PayoutAddress})
	return id, nil
}

// Projects returns the full ordered registry.
func (e *Engine) Projects() ([]*Project, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	count, err := e.state.IDOProjectCount()
	if err != nil {
		return nil, err
	}
	projects := make([]*Project, 0, count)
	for id := uint64(0); id < count; id++ {
		project, ok, err := e.state.IDOProjectGet(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrProjectNotFound
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// requireProject resolves a project id, failing with ErrProjectNotFound for
// anything outside the registry range.
func (e *Engine) requireProject(projectID uint64) (*Project, error) {
	project, ok, err := e.state.IDOProjectGet(projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

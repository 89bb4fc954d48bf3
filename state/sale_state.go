// Package state persists the sale engine's ledger in a key-value store with
// journaled snapshots, giving each purchase all-or-nothing visibility.
package state

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"

	"launchpad/native/ido"
	"launchpad/storage"
)

var idoProjectCountKey = []byte("ido/project/count")

func idoProjectKey(id uint64) []byte {
	return []byte("ido/project/" + strconv.FormatUint(id, 10))
}

func idoAllocationKey(id uint64, buyer [20]byte) []byte {
	return []byte("ido/alloc/" + strconv.FormatUint(id, 10) + "/" + hex.EncodeToString(buyer[:]))
}

func idoParticipantsKey(id uint64) []byte {
	return []byte("ido/participants/" + strconv.FormatUint(id, 10))
}

func idoTotalsKey(id uint64) []byte {
	return []byte("ido/totals/" + strconv.FormatUint(id, 10))
}

// journalEntry remembers the value a key held before a write so the write can
// be undone.
type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// SaleState implements the sale engine's persistence over a storage.Database
// with RLP-encoded records. Writes are journaled: Snapshot marks a point and
// RevertToSnapshot undoes every write made after it, in reverse order.
type SaleState struct {
	db      storage.Database
	journal []journalEntry
}

// NewSaleState binds a sale state to the supplied database.
func NewSaleState(db storage.Database) *SaleState {
	return &SaleState{db: db}
}

// Snapshot marks the current journal position.
func (s *SaleState) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every write made after the supplied snapshot.
func (s *SaleState) RevertToSnapshot(rev int) {
	if rev < 0 || rev > len(s.journal) {
		return
	}
	for i := len(s.journal) - 1; i >= rev; i-- {
		entry := s.journal[i]
		if entry.existed {
			_ = s.db.Put([]byte(entry.key), entry.prev)
		} else {
			_ = s.db.Delete([]byte(entry.key))
		}
	}
	s.journal = s.journal[:rev]
}

// CommitJournal forgets recorded undo state, making all writes since the
// last commit permanent. Callers commit after every completed unit of work
// to keep the journal bounded to the operation in flight.
func (s *SaleState) CommitJournal() {
	s.journal = s.journal[:0]
}

func (s *SaleState) getRaw(key []byte) ([]byte, bool, error) {
	return s.db.Get(key)
}

func (s *SaleState) putRaw(key []byte, value []byte) error {
	prev, existed, err := s.db.Get(key)
	if err != nil {
		return err
	}
	s.journal = append(s.journal, journalEntry{key: string(key), prev: prev, existed: existed})
	return s.db.Put(key, value)
}

func (s *SaleState) getRLP(key []byte, out interface{}) (bool, error) {
	raw, ok, err := s.getRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *SaleState) putRLP(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return s.putRaw(key, raw)
}

type storedProject struct {
	Name                 string
	StartTime            uint64
	EndTime              uint64
	TokenDecimals        uint8
	MaxAllocateAmount    *big.Int
	USDPricePerTokenE6   *big.Int
	DiscountMultiplierE4 uint32
	PayoutAddress        [20]byte
}

func (sp *storedProject) toProject() *ido.Project {
	return &ido.Project{
		Name:                 sp.Name,
		StartTime:            int64(sp.StartTime),
		EndTime:              int64(sp.EndTime),
		TokenDecimals:        sp.TokenDecimals,
		MaxAllocateAmount:    sp.MaxAllocateAmount,
		USDPricePerTokenE6:   sp.USDPricePerTokenE6,
		DiscountMultiplierE4: sp.DiscountMultiplierE4,
		PayoutAddress:        sp.PayoutAddress,
	}
}

func fromProject(p *ido.Project) *storedProject {
	return &storedProject{
		Name:                 p.Name,
		StartTime:            uint64(p.StartTime),
		EndTime:              uint64(p.EndTime),
		TokenDecimals:        p.TokenDecimals,
		MaxAllocateAmount:    nonNil(p.MaxAllocateAmount),
		USDPricePerTokenE6:   nonNil(p.USDPricePerTokenE6),
		DiscountMultiplierE4: p.DiscountMultiplierE4,
		PayoutAddress:        p.PayoutAddress,
	}
}

type storedAllocation struct {
	Buyer       [20]byte
	TokenAmount *big.Int
	PaidUSDC    *big.Int
	PaidUSDT    *big.Int
	PaidNative  *big.Int
}

type storedTotals struct {
	Allocated    *big.Int
	RaisedUSDC   *big.Int
	RaisedUSDT   *big.Int
	RaisedNative *big.Int
}

type storedParticipants struct {
	Addrs [][20]byte
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// IDOProjectCount returns the number of registered projects.
func (s *SaleState) IDOProjectCount() (uint64, error) {
	var count uint64
	if _, err := s.getRLP(idoProjectCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// IDOProjectGet loads a project by its registry index.
func (s *SaleState) IDOProjectGet(id uint64) (*ido.Project, bool, error) {
	var stored storedProject
	ok, err := s.getRLP(idoProjectKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toProject(), true, nil
}

// IDOProjectAppend appends a project to the registry and returns its index.
func (s *SaleState) IDOProjectAppend(p *ido.Project) (uint64, error) {
	if p == nil {
		return 0, fmt.Errorf("state: project must not be nil")
	}
	count, err := s.IDOProjectCount()
	if err != nil {
		return 0, err
	}
	if err := s.putRLP(idoProjectKey(count), fromProject(p)); err != nil {
		return 0, err
	}
	if err := s.putRLP(idoProjectCountKey, count+1); err != nil {
		return 0, err
	}
	return count, nil
}

// IDOAllocationGet loads one buyer's allocation record for a project.
func (s *SaleState) IDOAllocationGet(id uint64, buyer [20]byte) (*ido.AllocationRecord, bool, error) {
	var stored storedAllocation
	ok, err := s.getRLP(idoAllocationKey(id, buyer), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &ido.AllocationRecord{
		Buyer:       stored.Buyer,
		TokenAmount: stored.TokenAmount,
		PaidUSDC:    stored.PaidUSDC,
		PaidUSDT:    stored.PaidUSDT,
		PaidNative:  stored.PaidNative,
	}, true, nil
}

// IDOAllocationPut stores one buyer's allocation record for a project.
func (s *SaleState) IDOAllocationPut(id uint64, record *ido.AllocationRecord) error {
	if record == nil {
		return fmt.Errorf("state: allocation record must not be nil")
	}
	return s.putRLP(idoAllocationKey(id, record.Buyer), &storedAllocation{
		Buyer:       record.Buyer,
		TokenAmount: nonNil(record.TokenAmount),
		PaidUSDC:    nonNil(record.PaidUSDC),
		PaidUSDT:    nonNil(record.PaidUSDT),
		PaidNative:  nonNil(record.PaidNative),
	})
}

// IDOParticipants returns a project's buyers in first-purchase order.
func (s *SaleState) IDOParticipants(id uint64) ([][20]byte, error) {
	var stored storedParticipants
	if _, err := s.getRLP(idoParticipantsKey(id), &stored); err != nil {
		return nil, err
	}
	return stored.Addrs, nil
}

// IDOParticipantAppend records a first-time buyer for a project.
func (s *SaleState) IDOParticipantAppend(id uint64, buyer [20]byte) error {
	var stored storedParticipants
	if _, err := s.getRLP(idoParticipantsKey(id), &stored); err != nil {
		return err
	}
	stored.Addrs = append(stored.Addrs, buyer)
	return s.putRLP(idoParticipantsKey(id), &stored)
}

// IDOTotalsGet loads a project's aggregate totals.
func (s *SaleState) IDOTotalsGet(id uint64) (*ido.ProjectTotals, bool, error) {
	var stored storedTotals
	ok, err := s.getRLP(idoTotalsKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &ido.ProjectTotals{
		Allocated:    stored.Allocated,
		RaisedUSDC:   stored.RaisedUSDC,
		RaisedUSDT:   stored.RaisedUSDT,
		RaisedNative: stored.RaisedNative,
	}, true, nil
}

// IDOTotalsPut stores a project's aggregate totals.
func (s *SaleState) IDOTotalsPut(id uint64, totals *ido.ProjectTotals) error {
	if totals == nil {
		return fmt.Errorf("state: totals must not be nil")
	}
	return s.putRLP(idoTotalsKey(id), &storedTotals{
		Allocated:    nonNil(totals.Allocated),
		RaisedUSDC:   nonNil(totals.RaisedUSDC),
		RaisedUSDT:   nonNil(totals.RaisedUSDT),
		RaisedNative: nonNil(totals.RaisedNative),
	})
}

// Package memory implements the store contract in process memory.
//
// It backs tests and local development. The conditional-update and
// uniqueness semantics match the postgres implementation exactly: a
// conditional mutation either applies atomically or returns
// store.ErrConditionFailed, and duplicate idempotency keys return
// store.ErrDuplicate. WithTx snapshots the whole state and restores it when
// fn fails, giving real all-or-nothing transactions.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
)

// Memory is the in-memory implementation of store.Store.
type Memory struct {
	mu sync.Mutex
	st *state
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{st: newState()}
}

// state holds all tables. Methods on state assume the caller holds the
// Memory mutex (or is inside a transaction, which holds it for its whole
// duration).
type state struct {
	accounts  map[uuid.UUID]domain.Account
	artifacts map[uuid.UUID]domain.Artifact
	unlocks   map[string]domain.SectionUnlock // accountID|artifactID|sectionKey
	grants    map[string]domain.GrantRecord   // accountID|periodStart(unix)
	subs      map[string]domain.Subscription  // external id
	promos    map[uuid.UUID]domain.PromoCode
	actions   map[domain.ActionType]domain.PriceableAction
}

func newState() *state {
	return &state{
		accounts:  make(map[uuid.UUID]domain.Account),
		artifacts: make(map[uuid.UUID]domain.Artifact),
		unlocks:   make(map[string]domain.SectionUnlock),
		grants:    make(map[string]domain.GrantRecord),
		subs:      make(map[string]domain.Subscription),
		promos:    make(map[uuid.UUID]domain.PromoCode),
		actions:   make(map[domain.ActionType]domain.PriceableAction),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.artifacts {
		c.artifacts[k] = cloneArtifact(v)
	}
	for k, v := range s.unlocks {
		c.unlocks[k] = v
	}
	for k, v := range s.grants {
		c.grants[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.promos {
		c.promos[k] = v
	}
	for k, v := range s.actions {
		c.actions[k] = v
	}
	return c
}

func cloneArtifact(a domain.Artifact) domain.Artifact {
	if a.Partner != nil {
		p := *a.Partner
		a.Partner = &p
	}
	if a.Interpretation != nil {
		i := *a.Interpretation
		i.Sections = make(map[string]string, len(a.Interpretation.Sections))
		for k, v := range a.Interpretation.Sections {
			i.Sections[k] = v
		}
		a.Interpretation = &i
	}
	if a.ChartData != nil {
		a.ChartData = append(json.RawMessage(nil), a.ChartData...)
	}
	return a
}

func unlockKey(accountID, artifactID uuid.UUID, sectionKey string) string {
	return fmt.Sprintf("%s|%s|%s", accountID, artifactID, sectionKey)
}

func grantKey(accountID uuid.UUID, periodStart time.Time) string {
	return fmt.Sprintf("%s|%d", accountID, periodStart.UTC().Unix())
}

// WithTx runs fn against a transactional view while holding the store
// mutex, restoring the pre-transaction snapshot when fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txStore{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txStore is a Store bound to an in-flight transaction. It operates on the
// live state without locking; the enclosing WithTx holds the mutex.
type txStore struct {
	st *state
}

// WithTx on a transactional store joins the enclosing transaction.
func (t *txStore) WithTx(_ context.Context, fn func(store.Store) error) error {
	return fn(t)
}

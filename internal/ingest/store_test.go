package ingest

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"edterm.com/edterm/internal/database"
	"edterm.com/edterm/internal/search"
)

type courseKey struct {
	providerID uuid.UUID
	externalID string
}

type memState struct {
	providers  map[string]uuid.UUID
	courses    map[courseKey]uuid.UUID
	courseArgs map[uuid.UUID]database.CourseArgs
	categories map[string]uuid.UUID
	links      map[[2]uuid.UUID]bool
	affiliates []database.AffiliateLinkArgs
}

func (s *memState) clone() *memState {
	return &memState{
		providers:  maps.Clone(s.providers),
		courses:    maps.Clone(s.courses),
		courseArgs: maps.Clone(s.courseArgs),
		categories: maps.Clone(s.categories),
		links:      maps.Clone(s.links),
		affiliates: slices.Clone(s.affiliates),
	}
}

// memStore is an in-memory Store. Transactions snapshot the state and
// restore it when fn fails, which also models savepoints.
type memStore struct {
	st *memState
	// fail returns an error to inject for op ("provider", "course",
	// "category", "course_category", "affiliate") and key.
	fail  func(op, key string) error
	nilID string
	txs   int
}

func newMemStore() *memStore {
	return &memStore{st: &memState{
		providers:  map[string]uuid.UUID{},
		courses:    map[courseKey]uuid.UUID{},
		courseArgs: map[uuid.UUID]database.CourseArgs{},
		categories: map[string]uuid.UUID{},
		links:      map[[2]uuid.UUID]bool{},
	}}
}

func (m *memStore) injected(op, key string) error {
	if m.fail == nil {
		return nil
	}
	return m.fail(op, key)
}

func (m *memStore) InTx(_ context.Context, fn func(Store) error) error {
	m.txs++
	snapshot := m.st.clone()
	if err := fn(m); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

func (m *memStore) UpsertProvider(_ context.Context, args database.UpsertProviderArgs) (uuid.UUID, error) {
	if err := m.injected("provider", args.Slug); err != nil {
		return uuid.Nil, err
	}
	if m.nilID == "provider" {
		return uuid.Nil, nil
	}
	id, ok := m.st.providers[args.Slug]
	if !ok {
		id = uuid.New()
		m.st.providers[args.Slug] = id
	}
	return id, nil
}

func (m *memStore) UpsertCourse(_ context.Context, args database.CourseArgs) (uuid.UUID, error) {
	if err := m.injected("course", args.ExternalID); err != nil {
		return uuid.Nil, err
	}
	key := courseKey{args.ProviderID, args.ExternalID}
	id, ok := m.st.courses[key]
	if !ok {
		id = uuid.New()
		m.st.courses[key] = id
	}
	m.st.courseArgs[id] = args
	return id, nil
}

func (m *memStore) UpsertCategory(_ context.Context, args database.UpsertCategoryArgs) (uuid.UUID, error) {
	if err := m.injected("category", args.Slug); err != nil {
		return uuid.Nil, err
	}
	id, ok := m.st.categories[args.Slug]
	if !ok {
		id = uuid.New()
		m.st.categories[args.Slug] = id
	}
	return id, nil
}

func (m *memStore) UpsertCourseCategory(_ context.Context, courseID, categoryID uuid.UUID) error {
	if err := m.injected("course_category", categoryID.String()); err != nil {
		return err
	}
	m.st.links[[2]uuid.UUID{courseID, categoryID}] = true
	return nil
}

func (m *memStore) InsertAffiliateLink(_ context.Context, args database.AffiliateLinkArgs) (uuid.UUID, error) {
	if err := m.injected("affiliate", args.AffiliateURL); err != nil {
		return uuid.Nil, err
	}
	m.st.affiliates = append(m.st.affiliates, args)
	return uuid.New(), nil
}

func (m *memStore) UpsertAffiliateLink(_ context.Context, args database.AffiliateLinkArgs) (uuid.UUID, error) {
	if err := m.injected("affiliate", args.AffiliateURL); err != nil {
		return uuid.Nil, err
	}
	for i := range m.st.affiliates {
		if m.st.affiliates[i].CourseID == args.CourseID {
			m.st.affiliates[i] = args
			return uuid.New(), nil
		}
	}
	m.st.affiliates = append(m.st.affiliates, args)
	return uuid.New(), nil
}

// linksFor counts the category associations of the course with externalID.
func (m *memStore) linksFor(externalID string) int {
	var courseID uuid.UUID
	for k, id := range m.st.courses {
		if k.externalID == externalID {
			courseID = id
		}
	}
	n := 0
	for pair := range m.st.links {
		if pair[0] == courseID {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	calls int
	docs  func() int
	err   error
}

func (p *fakePublisher) Sync(context.Context) (*search.SyncResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	n := 0
	if p.docs != nil {
		n = p.docs()
	}
	return &search.SyncResult{Index: "courses", Documents: n, TaskUID: int64(p.calls)}, nil
}

//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"consentis/internal/policy/store"
	"consentis/pkg/platform/sentinel"
	"consentis/pkg/testutil/containers"
)

// backendSuite runs the same contract checks against any Store.
type backendSuite struct {
	suite.Suite
	store store.Store
	reset func(ctx context.Context) error
}

func (s *backendSuite) SetupTest() {
	s.Require().NoError(s.reset(context.Background()))
}

func document(hash string) *store.Document {
	return &store.Document{
		PolicyHash:      hash,
		PolicyJSON:      json.RawMessage(`{"durationSecs":60,"operations":["read"],"purposes":["research"]}`),
		TemplateHash:    "8f3c2f4a6c1b0d9e8f3c2f4a6c1b0d9e8f3c2f4a6c1b0d9e8f3c2f4a6c1b0d9e",
		TemplateVersion: "v3",
		CreatedAt:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func hashOf(n int) string {
	const hex = "0123456789abcdef"
	b := []byte("0000000000000000000000000000000000000000000000000000000000000000")
	b[63] = hex[n%16]
	b[62] = hex[(n/16)%16]
	return string(b)
}

func (s *backendSuite) TestRoundTripKeepsCanonicalBytes() {
	ctx := context.Background()
	doc := document(hashOf(1))
	s.Require().NoError(s.store.Save(ctx, doc))

	got, err := s.store.GetByHash(ctx, doc.PolicyHash)
	s.Require().NoError(err)
	s.Equal(string(doc.PolicyJSON), string(got.PolicyJSON))
	s.Equal(doc.TemplateHash, got.TemplateHash)
	s.Equal(doc.TemplateVersion, got.TemplateVersion)
	s.True(doc.CreatedAt.Equal(got.CreatedAt))
}

func (s *backendSuite) TestMissingDocument() {
	ctx := context.Background()
	_, err := s.store.GetByHash(ctx, hashOf(2))
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, hashOf(2)), sentinel.ErrNotFound)
}

func (s *backendSuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, document(hashOf(3))))
	s.Require().NoError(s.store.Delete(ctx, hashOf(3)))
	_, err := s.store.GetByHash(ctx, hashOf(3))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentSaveHasOneWinner verifies only one of many concurrent saves
// of the same hash succeeds.
func (s *backendSuite) TestConcurrentSaveHasOneWinner() {
	ctx := context.Background()
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Save(ctx, document(hashOf(4)))
			switch {
			case err == nil:
				wins.Add(1)
			case err == sentinel.ErrConflict:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, wins.Load())
	s.EqualValues(19, conflicts.Load())
}

type PostgresStoreSuite struct{ backendSuite }

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	s := new(PostgresStoreSuite)
	s.store = store.NewPostgres(pg.DB)
	s.reset = pg.TruncateAll
	suite.Run(t, s)
}

type RedisStoreSuite struct{ backendSuite }

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	s := new(RedisStoreSuite)
	s.store = store.NewRedis(rc.Client)
	s.reset = rc.Flush
	suite.Run(t, s)
}

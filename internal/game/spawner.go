package game

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netsession/internal/session"
)

// Spawner materializes the local player for a ready session. Players are
// written to the Store and kept in a live cache keyed by session generation,
// which also guards against adding a second player for the same connection.
type Spawner struct {
	Logger *logrus.Logger

	store *Store
	cache *gocache.Cache
}

// NewSpawner creates a Spawner whose cached players expire after ttl. A ttl of
// -1 keeps them until Forget is called.
func NewSpawner(logger *logrus.Logger, store *Store, ttl time.Duration) *Spawner {
	return &Spawner{
		Logger: logger,
		store:  store,
		cache:  gocache.New(ttl, 10*time.Second),
	}
}

func cacheKey(generation uint64) string {
	return strconv.FormatUint(generation, 10)
}

// AddLocalPlayer creates the player for req unless one already exists for its
// generation.
func (s *Spawner) AddLocalPlayer(ctx context.Context, req session.PlayerRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := cacheKey(req.Generation)
	if _, ok := s.cache.Get(key); ok {
		s.Logger.Warnf("local player for session %d already exists", req.Generation)
		return nil
	}

	player := &Player{
		Generation: req.Generation,
		Role:       req.Role.String(),
		Address:    req.Address,
		Name:       fmt.Sprintf("Player %d", req.Generation),
	}
	if err := s.store.CreatePlayer(player); err != nil {
		return err
	}
	// Add rather than Set so that a concurrent spawn for the same generation
	// can't silently replace the cached player.
	if err := s.cache.Add(key, player, gocache.DefaultExpiration); err != nil {
		s.Logger.Warnf("local player for session %d was added concurrently", req.Generation)
	}

	s.Logger.Infof("added local player %q (id %d) for session %d", player.Name, player.ID, req.Generation)
	return nil
}

// LocalPlayer returns the live player for a session generation.
func (s *Spawner) LocalPlayer(generation uint64) (*Player, bool) {
	p, ok := s.cache.Get(cacheKey(generation))
	if !ok {
		return nil, false
	}
	return p.(*Player), true
}

// Forget drops the live player of a finished session. The stored record stays.
func (s *Spawner) Forget(generation uint64) {
	s.cache.Delete(cacheKey(generation))
}

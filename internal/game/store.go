package game

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrPlayerNotFound is returned when no player exists for a session generation.
var ErrPlayerNotFound = errors.New("player not found")

// Player is the local player materialized once a client turns ready.
type Player struct {
	gorm.Model
	// Session generation the player was added for.
	Generation uint64 `gorm:"index"`
	// Role of the session ("client connected" or "host active").
	Role    string
	Address string
	Name    string
}

// Store persists players.
type Store struct {
	db *gorm.DB
}

// OpenStore connects to the player database using engine ("sqlite" or
// "postgres") and migrates the schema.
func OpenStore(engine, dataSource string, debug bool) (*Store, error) {
	var dialector gorm.Dialector
	switch engine {
	case "sqlite":
		dialector = sqlite.Open(dataSource)
	case "postgres":
		dialector = postgres.Open(dataSource)
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", engine)
	}

	// By default only log errors but enable full SQL query prints-to-console with debug mode
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection, migrating the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Player{}); err != nil {
		return nil, fmt.Errorf("error auto migrating db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreatePlayer(player *Player) error {
	if err := s.db.Create(player).Error; err != nil {
		return fmt.Errorf("error creating player: %w", err)
	}
	return nil
}

// FindPlayer returns the most recent player added for generation.
func (s *Store) FindPlayer(generation uint64) (*Player, error) {
	var player Player
	err := s.db.Where("generation = ?", generation).Order("id desc").First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlayerNotFound
	} else if err != nil {
		return nil, fmt.Errorf("error finding player: %w", err)
	}
	return &player, nil
}

// CountPlayers returns how many players were ever added for generation.
func (s *Store) CountPlayers(generation uint64) (int64, error) {
	var count int64
	if err := s.db.Model(&Player{}).Where("generation = ?", generation).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting players: %w", err)
	}
	return count, nil
}

func (s *Store) Close() error {
	database, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}

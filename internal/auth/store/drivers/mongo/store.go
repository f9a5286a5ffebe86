package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// DefaultDatabase is used when Config.Database is empty.
	DefaultDatabase = "miniokta"

	usersCollection = "users"
)

// Config selects the deployment and database.
type Config struct {
	URI      string
	Database string

	// ConnectTimeout bounds the initial handshake. Zero means 10s.
	ConnectTimeout time.Duration
}

// Store keeps users in a single collection keyed by the ULID. Email
// uniqueness is enforced by a unique index created in ApplyMigrations.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo: URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

func (s *Store) Users() store.Users {
	return &usersRepo{coll: s.db.Collection(usersCollection)}
}

// ApplyMigrations creates the indexes the repositories rely on. Index
// creation is idempotent so this is safe on every start.
func (s *Store) ApplyMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_email").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "mfa_pending_since", Value: 1}},
			Options: options.Index().
				SetName("mfa_pending").
				SetPartialFilterExpression(bson.D{{Key: "mfa_enabled", Value: false}}),
		},
	})
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// userDoc is the persisted shape of domain.User.
type userDoc struct {
	ID           string `bson:"_id"`
	Email        string `bson:"email"`
	DisplayName  string `bson:"display_name,omitempty"`
	PasswordHash string `bson:"password_hash,omitempty"`
	Provider     string `bson:"provider"`

	MFAEnabled      bool       `bson:"mfa_enabled"`
	MFASecret       string     `bson:"mfa_secret,omitempty"`
	MFALastStep     int64      `bson:"mfa_last_step"`
	MFAPendingSince *time.Time `bson:"mfa_pending_since,omitempty"`
	MFAEnabledAt    *time.Time `bson:"mfa_enabled_at,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toDoc(u domain.User) userDoc {
	return userDoc{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		PasswordHash:    u.PasswordHash,
		Provider:        string(u.Provider),
		MFAEnabled:      u.MFAEnabled,
		MFASecret:       u.MFASecret,
		MFALastStep:     u.MFALastStep,
		MFAPendingSince: u.MFAPendingSince,
		MFAEnabledAt:    u.MFAEnabledAt,
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:              d.ID,
		Email:           d.Email,
		DisplayName:     d.DisplayName,
		PasswordHash:    d.PasswordHash,
		Provider:        domain.Provider(d.Provider),
		MFAEnabled:      d.MFAEnabled,
		MFASecret:       d.MFASecret,
		MFALastStep:     d.MFALastStep,
		MFAPendingSince: d.MFAPendingSince,
		MFAEnabledAt:    d.MFAEnabledAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ratingcore/internal/config"
	"ratingcore/internal/constants"
	"ratingcore/internal/logger"
	"ratingcore/pkg/migrations"
)

type Store int

const (
	Redis Store = iota
	Postgres
	MongoDB
)

// Stores holds the connections a process opened. A field stays nil when
// the store was not requested or has no configuration.
type Stores struct {
	Redis    *redis.Client
	Postgres *sql.DB
	Mongo    *mongo.Client

	mongoDatabase string
}

// OpenStores connects to each wanted store that is configured. Migrations
// run when cfg.RunMigrations is set. On failure every store opened so far
// is closed again.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger, want ...Store) (*Stores, error) {
	s := &Stores{mongoDatabase: cfg.MongoDB.Database}
	if s.mongoDatabase == "" {
		s.mongoDatabase = constants.DefaultMongoDBName
	}

	for _, w := range want {
		var err error
		switch w {
		case Redis:
			err = s.openRedis(ctx, cfg.Redis, log)
		case Postgres:
			err = s.openPostgres(ctx, cfg, log)
		case MongoDB:
			err = s.openMongo(ctx, cfg, log)
		}
		if err != nil {
			return nil, errors.Join(err, s.Close(ctx))
		}
	}
	return s, nil
}

// PostgresDSN builds a lib/pq URL from cfg, escaping the credentials.
func PostgresDSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.DBName,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

func (s *Stores) openRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) error {
	if cfg.Host == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	s.Redis = rdb
	log.Infow("Redis connected", "addr", rdb.Options().Addr, "db", cfg.DB)
	return nil
}

func (s *Stores) openPostgres(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) error {
	if cfg.Postgres.Host == "" {
		return nil
	}

	db, err := sql.Open("postgres", PostgresDSN(cfg.Postgres))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.Postgres = db

	if cfg.RunMigrations {
		if err := migrations.RunPostgres(db); err != nil {
			return err
		}
		log.Infow("PostgreSQL migrations applied")
	}

	log.Infow("PostgreSQL connected", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
	return nil
}

func (s *Stores) openMongo(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) error {
	if cfg.MongoDB.URI == "" {
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	s.Mongo = client

	if cfg.RunMigrations {
		if err := migrations.EnsureMongoCollection(ctx, s.MongoDatabase()); err != nil {
			return err
		}
		log.Infow("MongoDB indexes ensured", "database", s.mongoDatabase)
	}

	log.Infow("MongoDB connected", "database", s.mongoDatabase)
	return nil
}

// MongoDatabase returns the configured database, or nil without a client.
func (s *Stores) MongoDatabase() *mongo.Database {
	if s.Mongo == nil {
		return nil
	}
	return s.Mongo.Database(s.mongoDatabase)
}

func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
		s.Redis = nil
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
		s.Postgres = nil
	}
	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
		s.Mongo = nil
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ratingcore/internal/admin"
	"ratingcore/internal/broker"
	"ratingcore/internal/cache"
	"ratingcore/internal/config"
	"ratingcore/internal/constants"
	"ratingcore/internal/loader"
	"ratingcore/internal/logger"
	"ratingcore/internal/prefix"
	"ratingcore/internal/reload"
	"ratingcore/internal/validity"
	"ratingcore/pkg/bootstrap"
	"ratingcore/pkg/match"
	"ratingcore/pkg/migrations"
	"ratingcore/pkg/models"
)

// openStores connects to the reference stores. Schema changes are explicit
// in cachectl, so migrations never run implicitly.
func openStores(ctx context.Context, cfg *config.Config, log logger.Logger) (*bootstrap.Stores, error) {
	dbCfg := cfg.Database
	dbCfg.RunMigrations = false
	return bootstrap.OpenStores(ctx, dbCfg, log, bootstrap.Postgres, bootstrap.MongoDB)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back cache store schemas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply Postgres migrations and ensure MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if s.Postgres != nil {
				if err := migrations.RunPostgres(s.Postgres); err != nil {
					return err
				}
				log.Infow("PostgreSQL migrations applied")
			}
			if db := s.MongoDatabase(); db != nil {
				if err := migrations.EnsureMongoCollection(ctx, db); err != nil {
					return err
				}
				log.Infow("MongoDB indexes ensured")
			}
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if s.Postgres == nil {
				return fmt.Errorf("database.postgres is not configured")
			}
			if err := migrations.RollbackPostgres(s.Postgres, steps); err != nil {
				return err
			}
			log.Infow("PostgreSQL migrations rolled back", "steps", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

type prefixEntryFile struct {
	Keys       []string `json:"keys"`
	Value      string   `json:"value"`
	Attributes []string `json:"attributes,omitempty"`
}

type validitySegmentFile struct {
	Group      string     `json:"group"`
	ResourceID string     `json:"resource_id"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
	Value      string     `json:"value"`
	Attributes []string   `json:"attributes,omitempty"`
}

func importCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import CACHE",
		Short: "Replace the stored data of a cache with the entries of a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			def, err := cacheDefinition(cfg, args[0])
			if err != nil {
				return err
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			ctx := cmd.Context()
			s, err := openStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			var count int
			switch def.Kind {
			case cache.KindPrefix:
				entries, err := decodePrefixEntries(data, def.Fields)
				if err != nil {
					return err
				}
				if s.Postgres == nil {
					return fmt.Errorf("database.postgres is not configured")
				}
				repo := loader.NewPostgresPrefixRepository(s.Postgres, "cachectl")
				if err := repo.ReplacePrefixEntries(ctx, def.Source, entries); err != nil {
					return err
				}
				count = len(entries)
			case cache.KindValidity:
				segments, err := decodeValiditySegments(data)
				if err != nil {
					return err
				}
				db := s.MongoDatabase()
				if db == nil {
					return fmt.Errorf("database.mongodb is not configured")
				}
				repo := loader.NewMongoValidityRepository(db, "cachectl")
				if err := repo.ReplaceValiditySegments(ctx, def.Source, segments); err != nil {
					return err
				}
				count = len(segments)
			}

			log.Infow("Cache data imported", "cache", def.Name, "source", def.Source, "entries", count)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the cache entries")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// decodePrefixEntries parses a JSON array of prefix entries and checks that
// they build into a tree of the given field count.
func decodePrefixEntries(data []byte, fields int) ([]prefix.Entry, error) {
	var in []prefixEntryFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("invalid prefix entry file: %w", err)
	}
	entries := make([]prefix.Entry, 0, len(in))
	for _, e := range in {
		entries = append(entries, prefix.Entry{Keys: e.Keys, Value: e.Value, Attributes: e.Attributes})
	}
	if _, err := prefix.Build(fields, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func decodeValiditySegments(data []byte) ([]validity.Segment, error) {
	var in []validitySegmentFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("invalid validity segment file: %w", err)
	}
	segments := make([]validity.Segment, 0, len(in))
	for _, s := range in {
		seg := validity.Segment{
			Group:      s.Group,
			ResourceID: s.ResourceID,
			ValidFrom:  s.ValidFrom,
			Value:      s.Value,
			Attributes: s.Attributes,
		}
		if s.ValidTo != nil {
			seg.ValidTo = *s.ValidTo
		}
		segments = append(segments, seg)
	}
	if _, err := validity.Build(segments); err != nil {
		return nil, err
	}
	return segments, nil
}

func reloadCmd() *cobra.Command {
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "reload [CACHE...]",
		Short: "Ask every rating service instance to reload caches",
		Long:  "Publishes a reload event on the config update topic. Without arguments every cache is reloaded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			for _, name := range args {
				if _, err := cacheDefinition(cfg, name); err != nil {
					return err
				}
			}

			topic := cfg.Broker.Kafka.ConfigUpdateTopic
			if topic == "" {
				return fmt.Errorf("broker.kafka.config_update_topic is not configured")
			}

			producer, err := broker.NewProducer(cfg.Broker, "cachectl", log)
			if err != nil {
				return err
			}
			defer producer.Close()

			env := reload.NewReloadEnvelope(args, models.ActionReload, requestedBy)
			if err := producer.Publish(cmd.Context(), topic, env); err != nil {
				return fmt.Errorf("failed to publish reload event: %w", err)
			}

			log.Infow("Reload event published", "topic", topic, "event_id", env.Reload.ID, "caches", args)
			return nil
		},
	}
	cmd.Flags().StringVar(&requestedBy, "requested-by", "cachectl", "Requester recorded in the reload event")
	return cmd
}

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Build a cache from its store and run one lookup",
	}
	cmd.AddCommand(lookupPrefixCmd())
	cmd.AddCommand(lookupValidityCmd())
	return cmd
}

func lookupPrefixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefix CACHE KEY...",
		Short: "Longest-prefix lookup with one key per field",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, keys := args[0], args[1:]
			tree, gen, err := loadCache(cmd.Context(), name, cache.KindPrefix)
			if err != nil {
				return err
			}
			t := tree.(*prefix.Tree)
			if len(keys) != t.Fields() {
				return fmt.Errorf("cache %s has %d key fields, got %d keys", name, t.Fields(), len(keys))
			}

			res := t.Lookup(keys...)
			return printJSON(cmd.OutOrStdout(), admin.PrefixLookupResponse{
				Cache:         name,
				Generation:    gen,
				Keys:          keys,
				Result:        res.Strings(match.NoMatch),
				WithChildData: res.WithChildData(match.NoMatch),
				Valid:         res.OK(),
			})
		},
	}
}

func lookupValidityCmd() *cobra.Command {
	var mode, group, resource, at string

	cmd := &cobra.Command{
		Use:   "validity CACHE",
		Short: "Interval lookup of (group, resource) at a timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339Nano, at)
				if err != nil {
					return fmt.Errorf("--at must be an RFC 3339 timestamp: %w", err)
				}
				t = parsed
			}

			name := args[0]
			v, gen, err := loadCache(cmd.Context(), name, cache.KindValidity)
			if err != nil {
				return err
			}
			x := v.(*validity.Index)

			resp := admin.ValidityLookupResponse{
				Cache:      name,
				Generation: gen,
				Mode:       mode,
				Group:      group,
				Resource:   resource,
				At:         t,
			}
			switch mode {
			case constants.ModeAll:
				all := x.AllMatches(group, resource, t)
				resp.Result = match.AllStrings(all)
				resp.WithChildData = match.AllWithChildData(all)
				resp.Valid = len(all) > 0
			case constants.ModeFrom:
				res := x.FromMatch(group, resource, t)
				resp.Result = res.Strings(match.NoValidityMatch)
				resp.WithChildData = [][]string{res.WithChildData(match.NoValidityMatch)}
				resp.Valid = res.OK()
			case constants.ModeFirst:
				res := x.FirstMatch(group, resource, t)
				resp.Result = res.Strings(match.NoValidityMatch)
				resp.WithChildData = [][]string{res.WithChildData(match.NoValidityMatch)}
				resp.Valid = res.OK()
			default:
				return fmt.Errorf("invalid mode: %s (valid: first, all, from)", mode)
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", constants.ModeFirst, "Lookup mode: first, all or from")
	cmd.Flags().StringVar(&group, "group", "", "Group, for example a rate plan")
	cmd.Flags().StringVar(&resource, "resource", "", "Resource id, for example a zone")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 timestamp, defaults to now")
	return cmd
}

// loadCache builds one named cache from its store the same way the rating
// service does and returns the published engine.
func loadCache(ctx context.Context, name string, kind cache.Kind) (interface{}, uint64, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, 0, err
	}
	def, err := cacheDefinition(cfg, name)
	if err != nil {
		return nil, 0, err
	}
	if def.Kind != kind {
		return nil, 0, fmt.Errorf("cache %s is a %s cache", name, def.Kind)
	}

	s, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, 0, err
	}
	defer s.Close(ctx)

	registry, err := cache.NewRegistry([]cache.Definition{def})
	if err != nil {
		return nil, 0, err
	}

	var prefixes loader.PrefixSource
	if s.Postgres != nil {
		prefixes = loader.NewPostgresPrefixRepository(s.Postgres, "cachectl")
	}
	var validities loader.ValiditySource
	if db := s.MongoDatabase(); db != nil {
		validities = loader.NewMongoValidityRepository(db, "cachectl")
	}

	if _, err := reload.New(registry, prefixes, validities, log).Reload(ctx, name); err != nil {
		return nil, 0, err
	}

	switch kind {
	case cache.KindPrefix:
		h, _ := registry.Prefix(name)
		snap := h.Load()
		return snap.Value, snap.Generation, nil
	default:
		h, _ := registry.Validity(name)
		snap := h.Load()
		return snap.Value, snap.Generation, nil
	}
}

func cacheDefinition(cfg *config.Config, name string) (cache.Definition, error) {
	for _, c := range cfg.Caches {
		if c.Name == name {
			return cache.Definition{Name: c.Name, Kind: cache.Kind(c.Kind), Source: c.Source, Fields: c.Fields}, nil
		}
	}
	return cache.Definition{}, fmt.Errorf("cache %q is not configured", name)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

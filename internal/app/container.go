package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// TenantStore reads and creates tenants.
type TenantStore interface {
	tenancy.Store
	CreateTenant(ctx context.Context, a tenancy.Account) (tenancy.Account, error)
}

// KeyStore is the idempotency store shared by write endpoints and the
// cleanup job.
type KeyStore interface {
	shared.IdempotencyPort
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// backend groups the repositories of one storage driver.
type backend struct {
	accounting  accounting.RepositoryPort
	mappings    mappings.Repository
	inventory   inventory.RepositoryPort
	procurement procurement.RepositoryPort
	stores      stores.RepositoryPort
	approvals   approval.Store
	ledger      reports.LedgerSource
	stock       reports.StockSource
	tenants     TenantStore
	keys        KeyStore
	audit       shared.AuditPort
}

func postgresBackend(pool *pgxpool.Pool) backend {
	inv := inventory.NewRepository(pool)
	return backend{
		accounting:  accounting.NewRepository(pool),
		mappings:    mappings.NewRepository(pool),
		inventory:   inv,
		procurement: procurement.NewRepository(pool),
		stores:      stores.NewRepository(pool),
		approvals:   approval.NewRepository(pool),
		ledger:      reports.NewRepository(pool),
		stock:       inv,
		tenants:     tenancy.NewRepository(pool),
		keys:        shared.NewIdempotencyStore(pool),
		audit:       shared.NewAuditLogger(pool),
	}
}

func memoryBackend(store *memory.Store) backend {
	return backend{
		accounting:  store.Accounting(),
		mappings:    store.Mappings(),
		inventory:   store.Inventory(),
		procurement: store.Procurement(),
		stores:      store.Stores(),
		approvals:   store.Approvals(),
		ledger:      store,
		stock:       store.Inventory(),
		tenants:     store,
		keys:        store,
		audit:       store,
	}
}

// Container holds the assembled services of one process.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Pool  *pgxpool.Pool
	Redis *redis.Client
	Queue *jobs.Client

	Ledger      *accounting.Service
	Mappings    mappings.Repository
	Inventory   *inventory.Service
	Procurement *procurement.Service
	Stores      *stores.Service
	Approvals   *approval.Service
	Reports     *reports.Service
	Hooks       *integration.Hooks
	Tenants     TenantStore
	Keys        KeyStore

	closers []func()
}

// Build connects the configured backends and wires every service.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var be backend
	switch cfg.StorageDriver {
	case StoragePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		c.closers = append(c.closers, pool.Close)
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				return nil, err
			}
		}
		be = postgresBackend(pool)
	case StorageMemory:
		store := memory.New()
		seeded, err := store.CreateTenant(ctx, tenancy.Account{Name: cfg.SeedTenantName, Type: tenancy.TypeHotel, OwnerID: cfg.SeedOwnerID})
		if err != nil {
			return nil, err
		}
		logger.Info("memory storage seeded", slog.Int64("tenant_id", seeded.ID), slog.Int64("owner_id", seeded.OwnerID))
		be = memoryBackend(store)
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.needsRedis() {
		client, err := cache.New(ctx, cfg.RedisOptions())
		if err != nil {
			return nil, err
		}
		c.Redis = client
		c.closers = append(c.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	}

	var seqStore sequence.Store
	switch cfg.SequenceBackend {
	case SequencePostgres:
		seqStore = sequence.NewPostgresStore(c.Pool)
	case SequenceRedis:
		seqStore = sequence.NewRedisStore(c.Redis)
	default:
		seqStore = sequence.NewMemoryStore()
	}
	seq := sequence.NewGenerator(seqStore)
	engine := inventory.NewEngine(logger, c.Metrics)

	c.Mappings = be.mappings
	c.Tenants = be.tenants
	c.Keys = be.keys
	c.Approvals = approval.NewService(be.approvals, be.audit, logger)
	c.Ledger = accounting.NewService(be.accounting, seq, be.audit, logger).WithMetrics(c.Metrics)
	c.Inventory = inventory.NewService(be.inventory, engine, seq, be.audit, logger)
	c.Procurement = procurement.NewService(be.procurement, engine, seq, be.audit, logger).
		WithApprovals(c.Approvals).
		WithIdempotency(be.keys)
	c.Stores = stores.NewService(be.stores, engine, seq, be.audit, logger).
		WithApprovals(c.Approvals).
		WithIdempotency(be.keys)
	c.Reports = reports.NewService(be.ledger, be.stock, logger, c.Metrics)
	c.Hooks = integration.NewHooks(c.Ledger, be.mappings, c.Procurement, c.Stores, logger)

	if cfg.PostingMode == PostingQueue {
		queue, err := jobs.NewClient(c.RedisOpts(), logger)
		if err != nil {
			return nil, err
		}
		c.Queue = queue
		c.closers = append(c.closers, func() {
			if err := queue.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		})
		c.Procurement.WithPublisher(queue)
		c.Stores.WithPublisher(queue)
	} else {
		c.Procurement.WithPublisher(c.Hooks)
		c.Stores.WithPublisher(c.Hooks)
	}

	ok = true
	return c, nil
}

// RedisOpts returns the asynq connection options.
func (c *Container) RedisOpts() asynq.RedisClientOpt {
	return c.Config.RedisOptions().AsynqOpts()
}

// Processor builds the background task processor over the container's
// services.
func (c *Container) Processor(metrics *jobmetrics.Metrics) *jobs.Processor {
	return jobs.NewProcessor(jobs.Deps{
		Poster:       c.Hooks,
		Balances:     c.Ledger,
		Reports:      c.Reports,
		Items:        c.Inventory,
		Keys:         c.Keys,
		Metrics:      metrics,
		Logger:       c.Logger,
		SyncLookback: c.Config.SyncLookback,
		Retention:    c.Config.IdempotencyRetention,
	})
}

// Guard returns the tenant access middleware.
func (c *Container) Guard() tenancy.Middleware {
	return tenancy.Middleware{Verifier: tenancy.NewVerifier(c.Tenants), Logger: c.Logger}
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/popup-campaign-engine/internal/commerce"
	commerceMock "github.com/acme/popup-campaign-engine/internal/commerce/mock"
	"github.com/acme/popup-campaign-engine/internal/config"
	"github.com/acme/popup-campaign-engine/internal/discount"
	"github.com/acme/popup-campaign-engine/internal/experiment"
	"github.com/acme/popup-campaign-engine/internal/frequency"
	"github.com/acme/popup-campaign-engine/internal/infra/db"
	"github.com/acme/popup-campaign-engine/internal/infra/redis"
	"github.com/acme/popup-campaign-engine/internal/prize"
	"github.com/acme/popup-campaign-engine/internal/queue"
	"github.com/acme/popup-campaign-engine/internal/ratelimit"
	"github.com/acme/popup-campaign-engine/internal/repository"
	pgrepo "github.com/acme/popup-campaign-engine/internal/repository/postgres"
	scyllarepo "github.com/acme/popup-campaign-engine/internal/repository/scylla"
	"github.com/acme/popup-campaign-engine/internal/selector"
	deliverysvc "github.com/acme/popup-campaign-engine/internal/service/delivery"
	rewardsvc "github.com/acme/popup-campaign-engine/internal/service/reward"
	"github.com/acme/popup-campaign-engine/internal/targeting"
	"github.com/acme/popup-campaign-engine/internal/token"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		publishers   *publishers
		stores       *stores
	}
}

type repositories struct {
	Campaign   repository.CampaignRepository
	Experiment repository.ExperimentRepository
	Lead       repository.LeadRepository
	Stats      repository.CampaignStatisticsRepository
	Events     repository.EngagementStore
}

type services struct {
	Delivery *deliverysvc.Service
	Reward   *rewardsvc.Service
	Discount *discount.Service
	Reissuer *discount.Reissuer
}

type publishers struct {
	Engagement *queue.EngagementPublisher
	Lead       *queue.LeadPublisher
}

type stores struct {
	Frequency *frequency.Store
	Tokens    *token.Store
	RateLimit *ratelimit.Limiter
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Campaign:   pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Experiment: pgrepo.NewExperimentRepository(c.Postgres.DB()),
			Lead:       pgrepo.NewLeadRepository(c.Postgres.DB()),
			Stats:      pgrepo.NewCampaignStatisticsRepository(c.Postgres.DB()),
			Events:     scyllarepo.NewEngagementStore(c.Scylla.Session()),
		}

		pubs := &publishers{
			Engagement: queue.NewEngagementPublisher(c.Kafka, c.Config.Kafka.EngagementTopic),
			Lead:       queue.NewLeadPublisher(c.Kafka, c.Config.Kafka.LeadTopic),
		}

		sts := &stores{
			Frequency: frequency.NewStore(c.Redis.Inner(), c.Config.Frequency),
			Tokens:    token.NewStore(c.Redis.Inner(), c.Config.Token),
			RateLimit: ratelimit.New(c.Redis.Inner(), c.Config.RateLimit, c.Logger),
		}

		var commerceClient commerce.Client
		if c.Config.Commerce.UseMock {
			commerceClient = commerceMock.NewClient()
		} else {
			commerceClient = commerce.NewHTTPClient(c.Config.Commerce)
		}

		discountSvc := discount.NewService(repos.Lead, commerceClient, c.Logger)

		pipeline := targeting.New(c.Logger, sts.Frequency)
		sel := selector.New(pipeline, experiment.NewResolver(), c.Logger)

		svcs := &services{
			Discount: discountSvc,
			Reissuer: discount.NewReissuer(repos.Lead, repos.Campaign, discountSvc, c.Logger),
			Delivery: deliverysvc.NewService(
				repos.Campaign,
				repos.Experiment,
				sel,
				sts.Frequency,
				sts.Tokens,
				repos.Events,
				pubs.Engagement,
				c.Logger,
			),
		}

		svcs.Reward = rewardsvc.NewService(
			repos.Campaign,
			sts.Tokens,
			sts.RateLimit,
			prize.NewSelector(),
			discountSvc,
			repos.Events,
			pubs.Engagement,
			pubs.Lead,
			c.Logger,
		)

		c.components.repositories = repos
		c.components.publishers = pubs
		c.components.stores = sts
		c.components.services = svcs
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Stores exposes the redis-backed stores.
func (c *Container) Stores() *stores {
	c.initComponents()
	return c.components.stores
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if p := c.components.publishers; p != nil {
		if p.Engagement != nil {
			if err := p.Engagement.Close(); err != nil {
				errs = append(errs, fmt.Errorf("engagement publisher close: %w", err))
			}
		}
		if p.Lead != nil {
			if err := p.Lead.Close(); err != nil {
				errs = append(errs, fmt.Errorf("lead publisher close: %w", err))
			}
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.EngagementTopic, c.Config.Kafka.LeadTopic}
	return c.Kafka.EnsureTopics(ctx, topics, 12, 1)
}

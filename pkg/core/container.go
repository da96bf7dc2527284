package core

import (
	"fmt"
	"sync"

	"fisbap/internal/correlate"
	"fisbap/internal/dispatch"
	"fisbap/internal/ingest"
	"fisbap/internal/orchestrate"
	"fisbap/internal/synth"
	"fisbap/pkg/config"
	"fisbap/pkg/modules/analytics"
	"fisbap/pkg/modules/kyc"
	"fisbap/pkg/modules/signing"
	"fisbap/pkg/modules/storage"
	"fisbap/pkg/modules/transport"
	"fisbap/pkg/ports"
)

// Container manages dependencies and provides access to all modules
type Container struct {
	config     *config.Config
	store      ports.MessageStorePort
	catalog    ports.CatalogPort
	signer     ports.SignerPort
	transport  ports.TransportPort
	analytics  ports.AnalyticsPort
	kyc        ports.KYCPort
	synth      *synth.Synthesizer
	dispatcher *dispatch.Dispatcher
	correlator *correlate.Correlator
	ingestor   *ingest.Ingestor
	waiter     *orchestrate.Waiter
	flow       *orchestrate.Flow

	mu          sync.RWMutex
	initialized bool
}

var (
	instance     *Container
	instanceOnce sync.Once
)

// GetContainer returns the singleton container instance
func GetContainer() *Container {
	instanceOnce.Do(func() {
		instance = &Container{}
	})
	return instance
}

// Initialize loads configuration and wires all modules
func (c *Container) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	c.config = cfg

	if err := c.initializeModules(); err != nil {
		return fmt.Errorf("failed to initialize modules: %w", err)
	}

	c.initialized = true
	return nil
}

// initializeModules creates all module instances in dependency order
func (c *Container) initializeModules() error {
	var err error

	c.store, err = storage.NewSQLiteStore(c.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize message store: %w", err)
	}

	c.catalog, err = storage.NewSQLiteCatalog(c.store)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}

	c.signer, err = signing.NewSigner(c.config.Signing, c.config.Subscriber.SubscriberID)
	if err != nil {
		return fmt.Errorf("failed to initialize signer: %w", err)
	}

	c.transport = transport.NewHTTPTransport(c.config.Network.HTTPTimeout)
	c.analytics = analytics.New(c.config.Analytics, c.config.Datadog)
	c.kyc = kyc.NewFormClient(c.config.Network.HTTPTimeout)

	c.synth = synth.New(c.config.Subscriber, c.config.Network)
	c.dispatcher = dispatch.New(c.store, c.signer, c.transport, c.analytics, c.config.Network)
	c.correlator = correlate.New(c.store)
	c.ingestor = ingest.New(c.store, c.analytics)
	c.waiter = orchestrate.NewWaiter(c.store, c.config.Wait)
	c.flow = orchestrate.NewFlow(c.synth, c.dispatcher, c.correlator, c.waiter, c.store, c.kyc)

	return nil
}

// Config returns the application configuration
func (c *Container) Config() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Store returns the message store
func (c *Container) Store() ports.MessageStorePort {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Catalog returns the denormalized catalog view
func (c *Container) Catalog() ports.CatalogPort {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// KYC returns the vendor form client
func (c *Container) KYC() ports.KYCPort {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kyc
}

// Synth returns the payload synthesizer
func (c *Container) Synth() *synth.Synthesizer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synth
}

// Dispatcher returns the outbound dispatcher
func (c *Container) Dispatcher() *dispatch.Dispatcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dispatcher
}

// Correlator returns the callback correlator
func (c *Container) Correlator() *correlate.Correlator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.correlator
}

// Ingestor returns the callback ingestor
func (c *Container) Ingestor() *ingest.Ingestor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ingestor
}

// Flow returns the end-to-end flow orchestrator
func (c *Container) Flow() *orchestrate.Flow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flow
}

// Shutdown releases module resources
func (c *Container) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}
	c.initialized = false
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

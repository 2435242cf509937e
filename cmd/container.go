// cmd/container.go
//
// Composition root. Owns infrastructure (DB, Redis, FS, provider) and wires
// the queue, tracking and template modules on top of it.
package main

import (
	"context"

	"github.com/Abraxas-365/mailroom/pkg/config"
	"github.com/Abraxas-365/mailroom/pkg/dbx"
	"github.com/Abraxas-365/mailroom/pkg/fsx"
	"github.com/Abraxas-365/mailroom/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/mailroom/pkg/fsx/fsxs3"
	"github.com/Abraxas-365/mailroom/pkg/jobx"
	"github.com/Abraxas-365/mailroom/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/mailroom/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/mailq/mailqapi"
	"github.com/Abraxas-365/mailroom/pkg/mailq/mailqinfra"
	"github.com/Abraxas-365/mailroom/pkg/mailq/mailqsrv"
	"github.com/Abraxas-365/mailroom/pkg/metricx"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/Abraxas-365/mailroom/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/mailroom/pkg/notifx/notifxfile"
	"github.com/Abraxas-365/mailroom/pkg/notifx/notifxses"
	"github.com/Abraxas-365/mailroom/pkg/notifx/notifxsmtp"
	"github.com/Abraxas-365/mailroom/pkg/tmplx"
	"github.com/Abraxas-365/mailroom/pkg/tmplx/tmplxapi"
	"github.com/Abraxas-365/mailroom/pkg/tmplx/tmplxfs"
	"github.com/Abraxas-365/mailroom/pkg/tracking"
	"github.com/Abraxas-365/mailroom/pkg/tracking/trackingapi"
	"github.com/Abraxas-365/mailroom/pkg/tracking/trackinginfra"
	"github.com/Abraxas-365/mailroom/pkg/tracking/trackingsrv"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const templatesDir = "templates"

// Container holds shared infrastructure and the wired modules.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileSystem
	Metrics    *metricx.Metrics

	provider notifx.Provider
	smtp     *notifxsmtp.SMTPProvider

	// Modules
	Jobs             *jobx.Client
	Adapter          *notifx.Adapter
	QueueService     *mailqsrv.QueueService
	TrackingService  *trackingsrv.Service
	MailHandlers     *mailqapi.Handlers
	TrackingHandlers *trackingapi.Handlers
	TemplateHandlers *tmplxapi.Handlers

	mailRepo  mailq.Repository
	trackRepo tracking.Repository
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure: DB, Redis, file storage, metrics, provider
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	c.initDatabase()
	c.initRedis()
	c.initFileStorage()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metricx.New(reg)
	logx.Info("  ✅ Metrics registry ready")

	c.initProvider()

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initDatabase() {
	dbCfg := c.Config.Database

	if dbCfg.Mode == "memory" {
		c.mailRepo = mailqinfra.NewMemoryRepository()
		c.trackRepo = trackinginfra.NewMemoryRepository()
		logx.Warn("  ⚠️ DATABASE_MODE=memory: queue and tracking data are not persisted")
		return
	}

	db, err := dbx.Connect(context.Background(), dbCfg)
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	c.DB = db
	logx.Info("  ✅ Database connected")

	if dbCfg.AutoMigrate {
		if err := dbx.MigrateUp(db); err != nil {
			logx.Fatalf("Failed to migrate database: %v", err)
		}
		logx.Info("  ✅ Migrations applied")
	}

	c.mailRepo = mailqinfra.NewPostgresRepository(db)
	c.trackRepo = trackinginfra.NewPostgresRepository(db)
}

func (c *Container) initRedis() {
	if !c.Config.Redis.Enabled {
		logx.Info("  ⏭️ Redis disabled")
		return
	}

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (set REDIS_ENABLED=false to run without it)", err)
	}
	logx.Info("  ✅ Redis connected")
}

func (c *Container) initFileStorage() {
	st := c.Config.Storage

	switch st.Mode {
	case "s3":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(), awsConfig.WithRegion(st.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.FileSystem = fsxs3.NewS3FileSystem(s3.NewFromConfig(awsCfg), st.Bucket, st.Prefix)
		logx.Infof("  ✅ S3 file system configured (bucket: %s, region: %s)", st.Bucket, st.AWSRegion)

	default:
		localFS, err := fsxlocal.NewLocalFileSystem(st.LocalDir)
		if err != nil {
			logx.Fatalf("Failed to initialize local file system: %v", err)
		}
		c.FileSystem = localFS
		logx.Infof("  ✅ Local file system configured (path: %s)", localFS.BasePath())
	}
}

func (c *Container) initProvider() {
	n := c.Config.Notifx

	switch n.Provider {
	case "smtp":
		servers := make(map[string]notifxsmtp.Server, len(n.Accounts))
		for _, a := range n.Accounts {
			servers[a.Name] = notifxsmtp.Server{
				Host:               a.SMTP.Host,
				Port:               a.SMTP.Port,
				Username:           a.SMTP.Username,
				Password:           a.SMTP.Password,
				Connections:        a.SMTP.Connections,
				InsecureSkipVerify: a.SMTP.InsecureSkipVerify,
				IdleTimeout:        a.SMTP.IdleTimeout,
				SendTimeout:        n.SendTimeout,
			}
		}
		p, err := notifxsmtp.NewSMTPProvider(servers)
		if err != nil {
			logx.Fatalf("Failed to initialize SMTP provider: %v", err)
		}
		c.smtp = p
		c.provider = p

	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(), awsConfig.WithRegion(n.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.provider = notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), n.SESConfigurationSet)

	case "file":
		c.provider = notifxfile.NewFileProvider(c.FileSystem, n.OutboxPrefix)

	default:
		c.provider = notifxconsole.NewConsoleProvider()
	}

	logx.Infof("  ✅ Email provider configured (%s, %d accounts)", c.provider.Name(), len(n.Accounts))
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	c.initJobs()

	n := c.Config.Notifx
	accounts := make([]notifx.Account, 0, len(n.Accounts))
	for _, a := range n.Accounts {
		accounts = append(accounts, notifx.Account{
			Name:        a.Name,
			Type:        notifx.EmailType(a.Type),
			Email:       a.Email,
			FromName:    a.FromName,
			HourlyLimit: a.HourlyLimit,
		})
	}
	pool := notifx.NewAccountPool(accounts,
		notifx.WithFailureThreshold(n.FailureThreshold),
		notifx.WithRecoveryAfter(n.RecoveryAfter),
	)
	adapter, err := notifx.NewAdapter(c.provider, pool, notifx.Config{SendTimeout: n.SendTimeout})
	if err != nil {
		logx.Fatalf("Failed to initialize delivery adapter: %v", err)
	}
	c.Adapter = adapter

	// Tracking
	linker := tracking.NewLinker(c.Config.Tracking.BaseURL, c.Config.Tracking.Path)
	c.TrackingService = trackingsrv.NewService(c.trackRepo, c.Config.Tracking.WriteTimeout, c.Metrics)
	c.TrackingHandlers = trackingapi.NewHandlers(c.TrackingService, c.Config.Tracking.Path)
	logx.Info("  ✅ Tracking module ready")

	// Mail queue
	mq := c.Config.MailQueue
	policy, err := mailq.NewRetryPolicy(mq.RetryPolicy, mq.BackoffBase, mq.BackoffCap, mq.MaxAttempts)
	if err != nil {
		logx.Fatalf("Invalid retry policy: %v", err)
	}
	processor := mailqsrv.NewProcessor(c.mailRepo, adapter, mq,
		mailqsrv.WithMetrics(c.Metrics),
		mailqsrv.WithLinker(linker),
		mailqsrv.WithRetryPolicy(policy),
		mailqsrv.WithSendTimeout(c.Config.Notifx.SendTimeout),
	)

	var jobs mailqsrv.JobQueue
	if c.Jobs != nil {
		jobs = c.Jobs
	}
	c.QueueService = mailqsrv.NewQueueService(c.mailRepo, processor, jobs, mq.ProcessJobType)
	if c.Jobs != nil {
		c.Jobs.Register(c.QueueService.JobType(), c.QueueService.HandleProcessJob)
	}
	c.MailHandlers = mailqapi.NewHandlers(c.QueueService, adapter.Accounts())
	logx.Infof("  ✅ Mail queue ready (retry policy: %s, batch: %d/%d)", mq.RetryPolicy, mq.DefaultBatchSize, mq.MaxBatchSize)

	// Templates
	store := tmplxfs.NewStore(c.FileSystem, templatesDir)
	c.TemplateHandlers = tmplxapi.NewHandlers(tmplx.NewPreviewer(store), store)
	logx.Info("  ✅ Template preview ready")
}

func (c *Container) initJobs() {
	jc := c.Config.Jobx
	if !jc.Enabled {
		logx.Info("  ⏭️ Background jobs disabled")
		return
	}

	var queue jobx.Queue
	if c.Redis != nil {
		queue = jobxredis.NewRedisQueue(c.Redis)
		logx.Info("  ✅ Job queue backed by Redis")
	} else {
		queue = jobxmem.NewMemoryQueue()
		logx.Warn("  ⚠️ Job queue held in memory: pending jobs are lost on restart")
	}

	c.Jobs = jobx.NewClient(queue,
		jobx.WithQueues(jc.Queues...),
		jobx.WithConcurrency(jc.Concurrency),
		jobx.WithPollInterval(jc.PollInterval),
		jobx.WithShutdownTimeout(jc.ShutdownTimeout),
		jobx.WithDequeueTimeout(jc.DequeueTimeout),
		jobx.WithDefaultRetryDelay(jc.DefaultRetryDelay),
	)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices blocks running the job worker until ctx is done.
func (c *Container) StartBackgroundServices(ctx context.Context) error {
	if c.Jobs == nil {
		<-ctx.Done()
		return nil
	}
	logx.Info("🔄 Starting background job worker...")
	return c.Jobs.Start(ctx)
}

// Ping checks the database when one is configured.
func (c *Container) Ping(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	return c.DB.PingContext(ctx)
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.smtp != nil {
		c.smtp.Close()
		logx.Info("  ✅ SMTP pools closed")
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}

func repeatString(s string, count int) string {
	result := ""
	for range count {
		result += s
	}
	return result
}

// Command grepwised is the GrepWise server: it loads configuration, wires
// every engine together, starts the configured ingestion sources and
// background jobs, serves the REST API, and shuts down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/alarm"
	"github.com/ozkanpakdil/grepwise-sub005/internal/archive"
	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
	"github.com/ozkanpakdil/grepwise-sub005/internal/cache"
	"github.com/ozkanpakdil/grepwise-sub005/internal/config"
	"github.com/ozkanpakdil/grepwise-sub005/internal/ha"
	"github.com/ozkanpakdil/grepwise-sub005/internal/httpapi"
	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/redaction"
	"github.com/ozkanpakdil/grepwise-sub005/internal/retention"
	"github.com/ozkanpakdil/grepwise-sub005/internal/scheduler"
	"github.com/ozkanpakdil/grepwise-sub005/internal/search"
	"github.com/ozkanpakdil/grepwise-sub005/internal/sources"
	"github.com/ozkanpakdil/grepwise-sub005/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New("grepwised", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.Init("grepwised")

	idx, err := index.Open(index.Config{Dir: cfg.Index.Dir}, log, m)
	if err != nil {
		log.Error2(context.Background(), "failed to open index", err, nil)
		os.Exit(1)
	}
	defer idx.Close()

	arc, err := archive.Open(archive.Config{Dir: cfg.Archive.Dir}, log, m)
	if err != nil {
		log.Error2(context.Background(), "failed to open archive engine", err, nil)
		os.Exit(1)
	}

	c := cache.New(cache.Config{
		Enabled:      cfg.Cache.Enabled,
		MaxSize:      cfg.Cache.MaxSize,
		ExpirationMs: int64(cfg.Cache.TTLMillis),
		RedisAddr:    cfg.Cache.RedisAddr,
	})
	defer c.Close()

	redactCfg := redaction.DefaultConfig()
	redactCfg.Enabled = cfg.Redaction.Enabled
	redactor := redaction.New(redactCfg)

	searchSvc := search.New(idx, c, redactor, m, log)

	retentionEngine := retention.New(idx, arc, c, log, m)
	alarmEngine := alarm.New(searchSvc, logNotifier{log: log}, log, m)

	buf := buffer.New(buffer.Config{
		Capacity:       cfg.Ingest.BufferCapacity,
		DrainInterval:  time.Duration(cfg.Ingest.BufferDrainMillis) * time.Millisecond,
		BatchThreshold: cfg.Ingest.BufferBatchThresh,
	}, log, m)

	var store *postgres.Store
	if cfg.Database.DSN != "" {
		store, err = postgres.Open(context.Background(), cfg.Database.DSN, cfg.Database.MigrateOnStart)
		if err != nil {
			log.Error2(context.Background(), "failed to open postgres store", err, nil)
			os.Exit(1)
		}
		defer store.Close()
	}

	sourceRegistry := sources.New(buf, log, m, "data/sources.json")
	if err := sourceRegistry.Load(); err != nil {
		log.Error2(context.Background(), "failed to load sources", err, nil)
		os.Exit(1)
	}
	seedSourcesFromEnv(cfg, sourceRegistry)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sourceRegistry.StartAll(rootCtx); err != nil {
		log.Error2(rootCtx, "failed to start configured sources", err, nil)
	}

	sched := scheduler.New(log, m)
	nodeID, _ := os.Hostname()
	if nodeID == "" {
		nodeID = "grepwised"
	}
	heartbeat := ha.NewWriter(nodeID, "data/heartbeat.json")
	registerJobs(sched, retentionEngine, alarmEngine, store, arc, heartbeat, log, m)
	sched.Start(rootCtx)
	defer sched.Stop(rootCtx)

	go runIndexerLoop(rootCtx, buf, idx, c, searchSvc, log, m)

	api := httpapi.New(httpapi.Deps{
		Search:    searchSvc,
		Alarms:    alarmEngine,
		Retention: retentionEngine,
		Archives:  arc,
		Cache:     c,
		Redactor:  redactor,
		Sources:   sourceRegistry,
		Buffer:    buf,
		Log:       log,
		Metrics:   m,

		CORSOrigins:        cfg.Server.CORSOriginList(),
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
	})

	addr := cfg.Server.Host + ":" + portString(cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: api.Router()}

	go func() {
		log.Info2(rootCtx, "grepwised listening", map[string]interface{}{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error2(rootCtx, "http server error", err, nil)
		}
	}()

	waitForShutdown()

	log.Info2(rootCtx, "shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sourceRegistry.StopAll(shutdownCtx)
	cancel()
}

// runIndexerLoop is the single indexer worker: every 50 ms it drains up to
// 4096 records from the buffer, commits the batch, and invalidates any cache
// entries whose window the commit touched. The buffer's DrainInterval and
// BatchThreshold are not consulted here.
func runIndexerLoop(ctx context.Context, buf *buffer.Buffer, idx *index.Engine, c *cache.Cache, searchSvc *search.Service, log *logging.Logger, m *metrics.Metrics) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if buf.Size() == 0 {
				continue
			}
			batch := buf.Drain(4096)
			if len(batch) == 0 {
				continue
			}
			start := time.Now()
			err := idx.Commit(ctx, batch)
			if m != nil {
				status := "ok"
				if err != nil {
					status = "error"
				}
				m.RecordIndexCommit(status, time.Since(start))
			}
			if log != nil {
				log.LogIndexCommit(ctx, len(batch), time.Since(start), err)
			}
			if err == nil {
				var minT, maxT int64
				for i, r := range batch {
					t := r.EffectiveTime()
					if i == 0 || t < minT {
						minT = t
					}
					if i == 0 || t > maxT {
						maxT = t
					}
				}
				c.InvalidateIntersecting(time.UnixMilli(minT), time.UnixMilli(maxT))
				searchSvc.Publish(batch)
			}
		}
	}
}

func registerJobs(sched *scheduler.Scheduler, ret *retention.Engine, al *alarm.Engine, store *postgres.Store, arc *archive.Engine, hb *ha.Writer, log *logging.Logger, m *metrics.Metrics) {
	sched.Register(scheduler.Job{
		Name:   "ha-heartbeat",
		Period: 10 * time.Second,
		Jitter: 0.1,
		Fn: func(ctx context.Context) error {
			return hb.Beat(time.Now())
		},
	})
	sched.Register(scheduler.Job{
		Name:   "retention",
		Period: 5 * time.Minute,
		Jitter: 0.1,
		Fn: func(ctx context.Context) error {
			_, err := ret.RunOnce(ctx, nowMillis())
			return err
		},
	})
	sched.Register(scheduler.Job{
		Name:   "alarm-eval",
		Period: time.Minute,
		Jitter: 0.1,
		Fn: func(ctx context.Context) error {
			for _, a := range al.Alarms() {
				if !a.Enabled {
					continue
				}
				if _, err := al.Tick(ctx, a.ID, nowMillis()); err != nil {
					log.Warn2(ctx, "alarm tick failed", map[string]interface{}{"alarmId": a.ID, "error": err.Error()})
				}
			}
			return nil
		},
	})
	if store != nil {
		sched.Register(scheduler.Job{
			Name:   "archive-metadata-sync",
			Period: 5 * time.Minute,
			Jitter: 0.1,
			Fn: func(ctx context.Context) error {
				for _, meta := range arc.List("") {
					if err := store.SaveArchiveMetadata(ctx, meta); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}
}

// seedSourcesFromEnv creates the initial file/syslog sources described by
// LOG_DIRS/SYSLOG_* when the sources registry starts empty, matching
// spec.md §6's "effect: initial File/Syslog scanners" semantics.
func seedSourcesFromEnv(cfg *config.Config, reg *sources.Registry) {
	if len(reg.List()) > 0 {
		return
	}
	for _, dir := range cfg.Ingest.LogDirList() {
		_, _ = reg.Create(context.Background(), sources.LogSource{
			Name: dir, Kind: sources.KindFile, Enabled: true,
			Directory: dir, Glob: "*.log",
			Recursive: true,
		})
	}
	if cfg.Ingest.SyslogPort > 0 {
		_, _ = reg.Create(context.Background(), sources.LogSource{
			Name: "syslog", Kind: sources.KindSyslog, Enabled: true,
			Port: cfg.Ingest.SyslogPort, Proto: cfg.Ingest.SyslogProto, Format: cfg.Ingest.SyslogFormat,
		})
	}
}

func waitForShutdown() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}

func portString(p int) string {
	if p <= 0 {
		p = 8080
	}
	return strconv.Itoa(p)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// logNotifier is the default alarm.Notifier: it logs dispatched
// notifications instead of calling out to email/webhook/Slack, which are
// out of scope per spec.md's Non-goals around outbound integrations.
type logNotifier struct {
	log *logging.Logger
}

func (n logNotifier) Notify(ctx context.Context, ch alarm.NotificationChannel, a alarm.Alarm, e alarm.Event) error {
	n.log.Info2(ctx, "alarm notification", map[string]interface{}{
		"alarmId": a.ID, "alarmName": a.Name, "channel": ch.Kind, "destination": ch.Destination, "eventId": e.ID,
	})
	return nil
}

package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/lostfound/chatsync/internal/api"
	"github.com/lostfound/chatsync/internal/archive"
	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/config"
	"github.com/lostfound/chatsync/internal/filestore"
	"github.com/lostfound/chatsync/internal/lock"
	"github.com/lostfound/chatsync/internal/logging"
	"github.com/lostfound/chatsync/internal/outbox"
	"github.com/lostfound/chatsync/internal/profile"
	"github.com/lostfound/chatsync/internal/rest"
	"github.com/lostfound/chatsync/internal/status"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const loginTimeout = 15 * time.Second

// Params holds the resolved profile configuration passed to the fx modules.
type Params struct {
	Profile    string
	Program    string // names the log file and the lock owner
	SocketPath string // optional override for testing; empty = use default
	Console    bool   // also log to stderr
}

// Core provides everything a process needs to run the sync engine for a
// profile: config, logging, the single-instance lock, the archive, the
// backend client, the session and the engine itself. The daemon and the
// TUI both build on it.
func Core(p Params) fx.Option {
	return fx.Options(
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRESTClient,
			provideFileStore,
			provideSession,
			provideEngine,
			provideArchiver,
			provideReconciler,
		),
		fx.Invoke(registerCoreLifecycle),
	)
}

// Module returns the fx module for the daemon: Core plus the gRPC server.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		Core(p),
		fx.Provide(
			provideHealth,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.LoadEffective(profile.ConfigPath(), profile.EnvPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile, p.Program), p.Profile, p.Console)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), p.Program)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore depends on the lock so the archive is only opened by the
// process that owns the profile.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("archive schema migrated", zap.Uint("from", result.From), zap.Uint("to", result.To))
	}
	logger.Info("archive opened", zap.String("path", db.Path()), zap.Uint("schema", result.To))
	return db, nil
}

func provideRESTClient(cfg *config.Config, logger *zap.Logger) (*rest.Client, error) {
	return rest.New(rest.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.RequestTimeout.Std(),
		CursorUnit:     rest.Unit(cfg.API.TimestampUnit),
		UploadCategory: cfg.Files.Category,
	}, logger.Named("rest"))
}

// provideFileStore picks the attachment backend named by files.backend.
func provideFileStore(lc fx.Lifecycle, cfg *config.Config, client *rest.Client, logger *zap.Logger) (intsync.FileStore, error) {
	if cfg.Files.Backend != "gcs" {
		return client, nil
	}
	gcs, err := filestore.NewGCS(context.Background(), cfg.Files.GCSBucket, cfg.Files.Category, cfg.Files.GCSCredentials, logger.Named("gcs"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return gcs.Close() },
	})
	logger.Info("attachments go to GCS", zap.String("bucket", cfg.Files.GCSBucket))
	return gcs, nil
}

// provideSession builds the identity from [user], logging in first when a
// password is configured.
func provideSession(cfg *config.Config, client *rest.Client, logger *zap.Logger) (chat.Session, error) {
	u := cfg.User
	if u.Email == "" {
		return chat.Session{}, fmt.Errorf("user.email is not configured")
	}
	if u.Password == "" {
		name := u.Name
		if name == "" {
			name = u.Email
		}
		return chat.Session{UserID: u.Email, Email: u.Email, Name: name}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()
	sess, err := client.Login(ctx, u.Email, u.Password)
	if err != nil {
		return chat.Session{}, fmt.Errorf("login as %s: %w", u.Email, err)
	}
	logger.Info("logged in", zap.String("email", sess.Email), zap.String("user_id", sess.UserID))
	return sess, nil
}

func provideEngine(cfg *config.Config, client *rest.Client, files intsync.FileStore, sess chat.Session, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *intsync.Engine {
	return intsync.New(client, files, sess, b, machine, logger, intsync.Options{
		PollInterval:   cfg.Sync.PollInterval.Std(),
		RequestTimeout: cfg.API.RequestTimeout.Std(),
		EchoWindow:     cfg.Sync.EchoWindow.Std(),
	})
}

func provideArchiver(db *store.DB, b *bus.Bus, logger *zap.Logger) *archive.Archiver {
	return archive.New(db, b, logger)
}

func provideReconciler(db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Reconciler {
	return outbox.NewReconciler(db, b, logger)
}

func provideHealth(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *api.Health {
	return api.NewHealth(b, machine.Current(), logger)
}

func provideService(p Params, engine *intsync.Engine, db *store.DB, client *rest.Client, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.Profile, engine, db, client, b, logger)
}

func registerCoreLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, engine *intsync.Engine, archiver *archive.Archiver, rec *outbox.Reconciler, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if n, err := rec.Recover(time.Now()); err != nil {
				logger.Warn("could not reconcile send journal", zap.Error(err))
			} else if n > 0 {
				logger.Info("marked interrupted sends as failed", zap.Int("count", n))
			}
			// Subscribe before anything can select a room.
			archiver.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			engine.Close()
			archiver.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("core stopped")
			return nil
		},
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, health *api.Health, svc *api.Service, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			health.Start(context.Background())

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if id, err := svc.RestoreRoom(); err != nil {
				logger.Warn("could not reopen last room", zap.String("room_id", id), zap.Error(err))
			} else if id != "" {
				logger.Info("reopened last room", zap.String("room_id", id))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			health.Stop()
			logger.Info("daemon stopped")
			return nil
		},
	})
}

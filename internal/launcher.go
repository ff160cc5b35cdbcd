package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netsession/internal/core"
	"github.com/dcrodman/netsession/internal/debug"
	"github.com/dcrodman/netsession/internal/game"
	"github.com/dcrodman/netsession/internal/session"
	"github.com/dcrodman/netsession/internal/transport"
)

// Launcher is the main entrypoint for netsession. It's responsible for
// initializing any shared resources (logging, the player database, the
// transport), wiring them to the session controller and tearing everything
// down again on shutdown.
type Launcher struct {
	Config *core.Config

	logger      *logrus.Logger
	store       *game.Store
	spawner     *game.Spawner
	transport   *transport.TCP
	session     *session.Controller
	debugServer *debug.Server
	wg          sync.WaitGroup
}

// Start initializes everything, then blocks until ctx is cancelled and shuts down.
func (l *Launcher) Start(ctx context.Context) error {
	if err := l.Init(); err != nil {
		l.Shutdown()
		return err
	}
	<-ctx.Done()
	l.Shutdown()
	return ctx.Err()
}

// Init sets up the collaborators and the session controller and starts the
// configured autostart role, if any.
func (l *Launcher) Init() error {
	var err error
	// Set up the logger, which will be used by all components.
	if l.logger == nil {
		if l.logger, err = core.NewLogger(l.Config); err != nil {
			return fmt.Errorf("error initializing logger: %w", err)
		}
	}

	l.store, err = game.OpenStore(l.Config.Game.Engine, l.Config.DatabaseURL(), l.Config.Debugging.DatabaseLoggingEnabled)
	if err != nil {
		return err
	}
	l.spawner = game.NewSpawner(l.logger, l.store, l.Config.Game.PlayerTTL)

	l.transport = transport.NewTCP(
		l.logger,
		l.Config.Transport.Name,
		l.Config.ListenAddress(),
		l.Config.Transport.Port,
		l.Config.Transport.DialTimeout,
	)

	platform := session.PlatformFunc(func() bool { return l.Config.Platform.CanServe })
	l.session = session.NewController(l.logger, l.transport, l.spawner, platform)

	l.wg.Add(1)
	go l.forgetFinishedPlayers(l.session.Subscribe())

	// Start the debug surface if we're configured to do so.
	if l.Config.Debugging.Enabled {
		l.debugServer = &debug.Server{
			Port:   l.Config.Debugging.HTTPPort,
			Logger: l.logger,
			Handler: &debug.Handler{
				Session:        l.session,
				Platform:       platform,
				DefaultAddress: l.Config.Session.Address,
				Logger:         l.logger,
			},
		}
		l.debugServer.Start()
	}

	return l.autostart()
}

// Session returns the controller once Init has run.
func (l *Launcher) Session() *session.Controller {
	return l.session
}

func (l *Launcher) autostart() error {
	var err error
	switch role := strings.ToLower(l.Config.Session.Autostart); role {
	case "", "none":
		return nil
	case "host":
		err = l.session.StartHost(l.Config.Session.Address)
	case "client":
		err = l.session.StartClient(l.Config.Session.Address)
	case "server":
		err = l.session.StartServer()
	default:
		return fmt.Errorf("unknown autostart role: %s", role)
	}
	if err != nil {
		return fmt.Errorf("error autostarting session: %w", err)
	}
	return nil
}

// forgetFinishedPlayers drops the cached player of every session that ended.
func (l *Launcher) forgetFinishedPlayers(updates <-chan session.State) {
	defer l.wg.Done()

	var current uint64
	for s := range updates {
		if current != 0 && s.Generation != current {
			l.spawner.Forget(current)
		}
		current = s.Generation
	}
}

// stopSession stops whichever role is running.
func (l *Launcher) stopSession() {
	var err error
	switch l.session.Snapshot().Phase {
	case session.HostActive:
		err = l.session.StopHost()
	case session.ServerActive:
		err = l.session.StopServer()
	case session.ClientConnecting, session.ClientConnected:
		err = l.session.StopClient()
	}
	if err != nil {
		l.logger.Warnf("error stopping session: %v", err)
	}
}

// Shutdown stops the session and releases everything Init set up.
func (l *Launcher) Shutdown() {
	if l.debugServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.debugServer.Shutdown(ctx); err != nil {
			l.logger.Warnf("error shutting down debug server: %v", err)
		}
		cancel()
	}

	if l.session != nil {
		l.stopSession()
		l.session.Close()
		l.wg.Wait()
	}
	if l.transport != nil {
		l.transport.Shutdown()
	}
	if l.store != nil {
		if err := l.store.Close(); err != nil {
			l.logger.Warnf("error closing player store: %v", err)
		}
	}
}

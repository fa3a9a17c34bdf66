package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/core"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/core/debug"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/data"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/master"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/spawner"
)

// Controller is the main entrypoint for the master server. It's responsible
// for initializing the shared resources (database, logging, the spawner's
// process launcher), wiring up the server, and launching everything.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	wg     sync.WaitGroup

	sessions     *data.SessionStore
	masterServer *master.Server
}

func (c *Controller) Start(ctx context.Context) error {
	var err error
	// Set up the logger, which will be used by all of the components.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.PprofEnabled {
		debug.StartPprofServer(c.logger, c.Config.Debugging.PprofPort)
	}

	c.sessions, err = data.NewSessionStore(c.Config.Database.Filename)
	if err != nil {
		return fmt.Errorf("initializing session store: %w", err)
	}

	c.masterServer = master.NewServer(c.Config, c.logger, c.sessions, spawner.NewExecLauncher())
	if err := c.masterServer.Start(ctx, &c.wg); err != nil {
		return fmt.Errorf("starting master server: %w", err)
	}

	c.wg.Wait()
	c.shutdown()
	return nil
}

func (c *Controller) shutdown() {
	c.masterServer.Shutdown()
	if err := c.sessions.Close(); err != nil {
		c.logger.Errorf("error closing session store: %v", err)
	}
}

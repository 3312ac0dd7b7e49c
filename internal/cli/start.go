package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/obstools/camd/internal"
	"github.com/obstools/camd/internal/device"
	"github.com/obstools/camd/internal/registry"
	"github.com/obstools/camd/internal/server"
)

// Represents the 'camd start' command.
type StartCmd struct{}

// Executes the start command.
//
// Connects to the site registry, opens and initializes the camera, and
// starts the command server. Any failure here is fatal: a daemon that
// cannot drive its camera has nothing to serve. Blocks until the context
// is cancelled (e.g. via SIGINT or SIGTERM).
func (c *StartCmd) Run(ctx context.Context) error {
	var reg *registry.Registry
	if RootCmd.Broker != "" {
		var err error
		reg, err = registry.Connect(ctx, registry.Config{
			Broker:   RootCmd.Broker,
			ClientID: internal.Name,
		})
		if err != nil {
			return err
		}
		defer reg.Close()
	} else {
		slog.Warn("no registry broker configured, parameters will not persist")
	}

	dev, err := openCamera(RootCmd.Camera)
	if err != nil {
		return err
	}
	defer dev.Close()

	srv, err := server.New(server.Config{
		Port:     port(),
		Device:   dev,
		Registry: reg,
		Spool:    RootCmd.Spool,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	slog.Info("shutting down")
	return srv.Stop()
}

// Opens and initializes the selected camera backend.
func openCamera(name string) (device.Capability, error) {
	var dev device.Capability
	switch name {
	case "webcam":
		dev = device.NewWebcam(0)
	default:
		return nil, fmt.Errorf("unknown camera backend %q", name)
	}

	if err := dev.Open(); err != nil {
		return nil, err
	}
	if err := dev.Initialize(); err != nil {
		dev.Close()
		return nil, err
	}
	if err := dev.Configure(dev.Info().MaxWidth, dev.Info().MaxHeight, device.FormatRaw16); err != nil {
		dev.Close()
		return nil, err
	}

	info := dev.Info()
	slog.Info("camera ready",
		"model", info.Model,
		"width", info.MaxWidth,
		"height", info.MaxHeight,
	)

	return dev, nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/samber/do/v2"

	backendimpl "github.com/foxseedlab/roundup/external/backend"
	configloader "github.com/foxseedlab/roundup/external/config"
	locationimpl "github.com/foxseedlab/roundup/external/location"
	pushimpl "github.com/foxseedlab/roundup/external/push"
	storeimpl "github.com/foxseedlab/roundup/external/store"
	"github.com/foxseedlab/roundup/internal/config"
	"github.com/foxseedlab/roundup/internal/location"
	"github.com/foxseedlab/roundup/internal/session"
)

const walkerSpeedMPS = 1.4

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	runClient(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, func(i do.Injector) (*gochannel.GoChannel, error) {
		return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(slog.Default())), nil
	})
	do.Provide(injector, func(i do.Injector) (message.Publisher, error) {
		return do.MustInvoke[*gochannel.GoChannel](i), nil
	})
	storeimpl.RegisterDI(injector)
	backendimpl.RegisterDI(injector)
	pushimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func runClient(cfg *config.Config, injector do.Injector) {
	engine, err := do.Invoke[*session.Engine](injector)
	if err != nil {
		slog.Error("failed to resolve session engine", "error", err)
		os.Exit(1)
	}
	bus, err := do.Invoke[*gochannel.GoChannel](injector)
	if err != nil {
		slog.Error("failed to resolve event bus", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states, err := bus.Subscribe(ctx, session.TopicStateChange)
	if err != nil {
		slog.Error("failed to subscribe to state changes", "error", err)
		os.Exit(1)
	}
	go func() {
		for msg := range states {
			fmt.Printf("state> %s\n", string(msg.Payload))
			msg.Ack()
		}
	}()

	go engine.Run(ctx)
	slog.Info("startup: session engine running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		commandLoop(ctx, engine)
		close(done)
	}()

	select {
	case <-sigCh:
	case <-done:
	}
	slog.Info("shutting down")
}

// commandLoop is a line-oriented console for driving the engine by hand.
func commandLoop(ctx context.Context, engine *session.Engine) {
	var walker *locationimpl.Walker
	defer func() {
		if walker != nil {
			walker.Stop()
		}
	}()

	fmt.Println("commands: start <lat> <lon> <address> | invite | accept <text> | walk <lat> <lon> | mode <walking|driving> | cancel | leave | sync | state | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "start":
			if len(fields) < 4 {
				fmt.Println("usage: start <lat> <lon> <address>")
				continue
			}
			var meet location.Point
			if meet, err = parsePoint(fields[1], fields[2]); err == nil {
				err = engine.StartSession(meet, strings.Join(fields[3:], " "))
			}

		case "invite":
			var text string
			if text, err = engine.InviteText(); err == nil {
				fmt.Println(text)
			}

		case "accept":
			if len(fields) < 2 {
				fmt.Println("usage: accept <invite text>")
				continue
			}
			err = engine.AcceptInvite(strings.Join(fields[1:], " "))

		case "walk":
			if len(fields) != 3 {
				fmt.Println("usage: walk <lat> <lon>")
				continue
			}
			var from location.Point
			if from, err = parsePoint(fields[1], fields[2]); err != nil {
				break
			}
			state := engine.State()
			if walker != nil {
				walker.Stop()
			}
			walker = locationimpl.NewWalker(from,
				location.Point{Latitude: state.MeetLatitude, Longitude: state.MeetLongitude},
				walkerSpeedMPS, time.Second)
			var updates <-chan location.Update
			if updates, err = walker.Start(ctx); err != nil {
				break
			}
			go func() {
				for u := range updates {
					engine.HandleLocation(u)
				}
			}()

		case "mode":
			if len(fields) != 2 {
				fmt.Println("usage: mode <walking|driving>")
				continue
			}
			mode := location.ModeWalking
			if fields[1] == "driving" {
				mode = location.ModeDriving
			}
			engine.SetTravelMode(mode)

		case "cancel":
			err = engine.CancelSession()

		case "leave":
			err = engine.CancelInvitation()

		case "sync":
			err = engine.SyncNotifications()

		case "state":
			s := engine.State()
			fmt.Printf("role=%s session=%d status=%s en_route=%d arrived=%d\n",
				s.Role, s.SessionID, s.SessionStatus, len(s.EnRoute), s.ArrivedCount)

		case "quit":
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}

		if err != nil {
			fmt.Println("error:", err)
		}
	}
}

func parsePoint(latStr, lonStr string) (location.Point, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return location.Point{}, fmt.Errorf("bad latitude %q: %w", latStr, err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return location.Point{}, fmt.Errorf("bad longitude %q: %w", lonStr, err)
	}
	return location.Point{Latitude: lat, Longitude: lon}, nil
}

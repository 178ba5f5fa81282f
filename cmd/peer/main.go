package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/wsclient"
	"github.com/dkeye/Huddle/internal/app/mesh"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadPeer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load peer config")
	}
	if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(l)
	}

	kind, err := domain.ParseCallKind(cfg.CallType)
	if err != nil {
		log.Fatal().Err(err).Str("call_type", cfg.CallType).Msg("bad call type")
	}
	self, err := domain.NewIdentity(domain.UserID(cfg.UserID), cfg.Name, cfg.Email, cfg.College)
	if err != nil {
		log.Fatal().Err(err).Msg("bad identity")
	}
	group := domain.GroupID(cfg.GroupID)

	api, err := rtc.NewAPI()
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}
	media, err := rtc.NewLocalMedia(kind)
	if err != nil {
		log.Fatal().Err(err).Msg("local media")
	}
	media.Start(ctx)

	client, err := wsclient.Dial(ctx, cfg.ServerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("dial hub")
	}

	engine := mesh.New(ctx, mesh.Options{
		Self:           self.ID,
		Factory:        rtc.NewFactory(api, rtc.DefaultWebRTCConfig(cfg.ICEServers), media),
		Signaler:       wsclient.Signaler{Client: client, Self: *self, Group: group},
		Media:          media,
		OfferCacheSize: cfg.OfferCacheSize,
	})
	peer := wsclient.NewParticipant(client, *self, group, engine)

	// The socket outlives ctx so the leave event still goes out.
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(runCtx)
	})
	g.Go(func() error {
		defer stopRun()
		if err := peer.Join(); err != nil {
			return err
		}
		if cfg.StartCall {
			id, err := peer.StartCall(kind, cfg.GroupName)
			if err != nil {
				return err
			}
			log.Info().Str("module", "peer").Str("call", string(id)).Msg("call started")
		}
		select {
		case <-gctx.Done():
		case <-peer.Left():
		}
		peer.Leave()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("peer stopped")
		return
	}
	log.Info().Str("user", cfg.UserID).Msg("peer exited")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"studylink/internal/core/domain"
	"studylink/internal/media"
	"studylink/internal/peer"
	"studylink/internal/recording"
	"studylink/internal/room"
	"studylink/internal/signaling"
	"studylink/internal/whiteboard"
	"studylink/pkg/config"
	"studylink/pkg/logger"
	"studylink/pkg/utils"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		meetingID  = flag.String("meeting", "", "meeting id to join (required)")
		userID     = flag.String("user", "", "user id (random when empty)")
		username   = flag.String("name", "guest", "display name")
		apiURL     = flag.String("api", "http://localhost:8080", "base URL of the meeting API")
		relayURL   = flag.String("relay", "ws://localhost:8081/ws", "relay WebSocket endpoint")
		token      = flag.String("token", "", "session token")
	)
	flag.Parse()

	if *meetingID == "" {
		fmt.Fprintln(os.Stderr, "-meeting is required")
		os.Exit(2)
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	uid := domain.UserID(*userID)
	mid := domain.MeetingID(*meetingID)

	channel := signaling.NewChannel(*relayURL, mid, uid, *token, signaling.ChannelConfig{
		BackoffBase: cfg.Client.BackoffBase,
		BackoffMax:  cfg.Client.BackoffMax,
	}, log)

	peerCfg := peer.DefaultManagerConfig()
	peerCfg.DisconnectGrace = cfg.Client.DisconnectGrace
	if len(cfg.WebRTC.ICEServers) > 0 {
		peerCfg.ICEServers = nil
		for _, s := range cfg.WebRTC.ICEServers {
			peerCfg.ICEServers = append(peerCfg.ICEServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	}
	peerCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	peerCfg.PortRange.Max = cfg.WebRTC.PortRange.Max
	peers := peer.NewManager(uid, peerCfg, channel.Send, log)

	mediaCtl := media.NewController(uid, media.NewSyntheticProvider(), log)

	uploadURL := fmt.Sprintf("%s/api/v1/meetings/%s/recordings", *apiURL, mid)
	uploader := recording.NewUploader(uploadURL, *token, log)
	recorder := recording.NewController(mid, recording.SyntheticOpener(0), uploader, cfg.Client.ChunkInterval, log)

	board := whiteboard.NewSync(uid, whiteboard.NewMemorySurface(), channel.Send, log)
	fetcher := room.NewHTTPDetailsFetcher(*apiURL, *token)

	orch := room.NewOrchestrator(room.Config{
		MeetingID:     mid,
		UserID:        uid,
		Username:      *username,
		UploadTimeout: cfg.Client.UploadTimeout,
	}, channel, peers, mediaCtl, recorder, board, fetcher, log)

	orch.OnEvent(func(ev room.Event) {
		log.Infow("room event", "kind", ev.Kind, "from", ev.From)
	})

	ctx := context.Background()
	if err := orch.Join(ctx); err != nil {
		log.Fatalw("failed to join meeting", "meeting_id", mid, "error", err)
	}
	log.Infow("joined meeting", "meeting_id", mid, "user_id", uid, "state", orch.State())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received shutdown signal", "signal", sig)

	elapsed := orch.Elapsed()
	orch.Leave(ctx)
	log.Infow("left meeting", "elapsed", utils.FormatDuration(elapsed))
}

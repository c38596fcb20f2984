package cli

import (
	"github.com/tOgg1/roomline/internal/chatapi"
	"github.com/tOgg1/roomline/internal/logging"
	"github.com/tOgg1/roomline/internal/timeblock"
	"github.com/tOgg1/roomline/internal/timeline"
)

func (a *app) apiClient() (*chatapi.Client, error) {
	if err := a.cfg.ValidateClient(); err != nil {
		return nil, err
	}
	logger := logging.Component("chatapi")
	return chatapi.NewClient(chatapi.ClientConfig{
		BaseURL: a.cfg.Client.ServerURL,
		Token:   a.cfg.Client.Token,
		Timeout: a.cfg.Client.RequestTimeout,
		Logger:  &logger,
	})
}

func (a *app) pushClient() (*chatapi.PushClient, error) {
	logger := logging.Component("push")
	return chatapi.NewPushClient(chatapi.PushConfig{
		URL:               a.cfg.WebsocketURL(),
		Token:             a.cfg.Client.Token,
		RoomID:            a.cfg.Client.RoomID,
		Heartbeat:         a.cfg.Client.Heartbeat,
		ReconnectInterval: a.cfg.Client.ReconnectInterval,
		Logger:            &logger,
	})
}

func (a *app) annotator() *timeblock.Annotator {
	ann := timeblock.New()
	ann.Gap = a.cfg.Timeline.Gap
	return ann
}

func (a *app) loadingPolicy() timeline.LoadingPolicy {
	if a.cfg.Timeline.ReleaseLoadingOnError {
		return timeline.ReleaseLoading
	}
	return timeline.HoldLoading
}

// storeOptions configures a headless timeline store from the loaded config.
func (a *app) storeOptions() []timeline.Option {
	return []timeline.Option{
		timeline.WithPageSize(a.cfg.Timeline.PageSize),
		timeline.WithAnnotator(a.annotator()),
		timeline.WithLoadingPolicy(a.loadingPolicy()),
		timeline.WithLogger(logging.WithRoom(a.cfg.Client.RoomID)),
	}
}

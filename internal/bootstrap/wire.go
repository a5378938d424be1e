package bootstrap

import (
	"time"

	"serenade/internal/api"
	"serenade/internal/audio"
	"serenade/internal/config"
	"serenade/internal/ports"
	"serenade/internal/protocol"
	"serenade/internal/rules"
	"serenade/internal/transport"
	"serenade/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Manager    *transport.Manager
	Controller *usecase.SessionController
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime. The
// frame route from manager to controller is bound exactly once here and
// never reassigned.
func Build(events ports.EventSink, clipboard ports.Clipboard, opener ports.ResultOpener) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	answerRules, err := rules.NewEngine(cfg.Rules.Path)
	if err != nil {
		return Services{}, err
	}

	wsURL, err := transport.ServiceWSURL(cfg.Service.BaseURL)
	if err != nil {
		return Services{}, err
	}

	manager := transport.NewManager(
		&transport.WebsocketDialer{HandshakeTimeout: 15 * time.Second},
		wsURL,
		transport.Policy{
			BaseDelay:   cfg.Connection.BaseDelay,
			MaxDelay:    cfg.Connection.MaxDelay,
			MaxAttempts: cfg.Connection.MaxAttempts,
		},
		events,
	)

	controller := usecase.NewSessionController(
		manager,
		api.New(cfg.Service.BaseURL, cfg.Service.RequestTimeout),
		audio.NewFFMPEGRecorder(cfg.Audio.RecorderCommand),
		answerRules,
		clipboard,
		opener,
		events,
		usecase.Config{
			QuestionCount: cfg.Interview.QuestionCount,
			CameraTimeout: cfg.Interview.CameraTimeout,
			ClassifyMode:  protocol.Mode(cfg.Interview.ClassifyMode),
			Record: ports.RecordConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
				ClipFormat:  cfg.Audio.ClipFormat,
			},
		},
	)

	manager.Route(controller.HandleFrame)

	return Services{Manager: manager, Controller: controller, Config: cfg}, nil
}

package autocar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-autocar/pkg/audio"
	"github.com/teslashibe/go-autocar/pkg/camera"
	"github.com/teslashibe/go-autocar/pkg/debug"
	"github.com/teslashibe/go-autocar/pkg/detection"
	"github.com/teslashibe/go-autocar/pkg/drive"
	"github.com/teslashibe/go-autocar/pkg/motor"
	"github.com/teslashibe/go-autocar/pkg/steering"
	"github.com/teslashibe/go-autocar/pkg/store"
	"github.com/teslashibe/go-autocar/pkg/tts"
	"github.com/teslashibe/go-autocar/pkg/warning"
	"github.com/teslashibe/go-autocar/pkg/web"
)

// App owns every component and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	steering steering.Config
	cameras  *camera.Manager

	// Hardware, handed to the loop which releases it
	source   camera.Source
	detector detection.Detector
	actuator motor.Actuator

	voice     tts.Provider
	announcer *warning.Announcer
	store     *store.Store
	webServer *web.Server
	loop      *drive.Loop
}

// New validates cfg and creates the application.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	debug.Frames = cfg.DebugFrames

	sc, err := steering.Preset(cfg.SteeringPreset)
	if err != nil {
		return nil, err
	}
	return &App{
		config:   cfg,
		logger:   logger.With("component", "autocar"),
		steering: sc,
	}, nil
}

// Init brings up every component. Call it after New and before Run. On
// error, Shutdown releases whatever was opened.
func (a *App) Init(ctx context.Context) error {
	a.logger.Info("starting", "camera", a.config.CameraPreset, "motor", a.config.Motor,
		"voice", a.config.Voice, "steering", a.config.SteeringPreset)

	if a.config.DBPath != "" {
		db, err := store.Open(a.config.DBPath)
		if err != nil {
			return fmt.Errorf("session log: %w", err)
		}
		a.store = db
	}

	if err := a.initVision(); err != nil {
		return err
	}
	if err := a.initMotor(); err != nil {
		return err
	}
	if err := a.initVoice(ctx); err != nil {
		// Driving without a voice is allowed; the warning is advisory
		a.logger.Warn("voice disabled", "error", err)
	}

	if a.config.WebAddr != "" {
		opts := web.DefaultOptions()
		opts.Addr = a.config.WebAddr
		opts.StaticDir = a.config.WebStatic
		opts.Logger = a.logger
		opts.Steering = a.steering
		opts.Camera = a.cameras
		opts.CameraFPS = a.config.CameraFPS
		if a.store != nil {
			opts.Sessions = a.store
		}
		a.webServer = web.NewServer(opts)
	}

	return a.initLoop()
}

func (a *App) initVision() error {
	camCfg := a.config.CameraConfig()
	capture, err := camera.Open(camCfg, a.logger)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	a.source = capture
	a.cameras = camera.NewManager(camCfg)
	a.cameras.OnConfigChange = capture.Reconfigure

	yolo := detection.DefaultYOLOConfig()
	yolo.ModelPath = a.config.ModelPath
	det, err := detection.NewYOLO(yolo, a.logger)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	a.detector = det
	return nil
}

func (a *App) initMotor() error {
	switch a.config.Motor {
	case MotorSerial:
		s, err := motor.OpenSerial(a.config.SerialPort, motor.PortOptions{BaudRate: a.config.BaudRate}, a.logger)
		if err != nil {
			return fmt.Errorf("motor: %w", err)
		}
		a.actuator = s
	case MotorHTTP:
		a.actuator = motor.NewHTTP(a.config.MotorURL, motor.DefaultHTTPTimeout)
	default:
		a.actuator = motor.NewDry(a.logger)
	}
	return nil
}

func (a *App) initVoice(ctx context.Context) error {
	if a.config.Voice == VoiceOff {
		return nil
	}

	common := []tts.Option{
		tts.WithLanguage(a.config.Language),
		tts.WithLogger(a.logger),
	}

	var providers []tts.Provider
	if a.config.Voice == VoiceGoogle || a.config.Voice == VoiceChain {
		opts := append(common, tts.WithAPIKey(a.config.GoogleAPIKey), tts.WithCredentialsFile(a.config.GoogleCredentialsFile))
		g, err := tts.NewGoogle(ctx, opts...)
		if err != nil {
			a.logger.Warn("google voice unavailable", "error", err)
		} else {
			providers = append(providers, g)
		}
	}
	if a.config.Voice == VoiceOpenAI || (a.config.Voice == VoiceChain && a.config.OpenAIKey != "") {
		o, err := tts.NewOpenAI(append(common, tts.WithAPIKey(a.config.OpenAIKey))...)
		if err != nil {
			a.logger.Warn("openai voice unavailable", "error", err)
		} else {
			providers = append(providers, o)
		}
	}
	if len(providers) == 0 {
		return tts.ErrProviderUnavailable
	}

	var provider tts.Provider = providers[0]
	if len(providers) > 1 {
		chain, err := tts.NewChainWithLogger(a.logger, providers...)
		if err != nil {
			return err
		}
		provider = chain
	}
	a.voice = provider

	player := audio.NewPlayer(audio.ParseCommand(a.config.PlayerCommand))
	a.announcer = warning.NewAnnouncer(provider, player, warning.Config{
		WarnPhrase:  a.config.WarnPhrase,
		StartPhrase: a.config.StartPhrase,
		PlayTimeout: a.config.PlayTimeout,
	}, a.logger)

	if err := a.announcer.Prepare(ctx); err != nil {
		a.logger.Warn("phrases not cached, synthesizing on demand", "error", err)
	}
	return nil
}

func (a *App) initLoop() error {
	engine, err := steering.NewEngine(a.steering)
	if err != nil {
		return err
	}

	dc := a.config.Drive
	dc.Source = fmt.Sprintf("%s:%d", a.config.CameraPreset, a.config.CameraIndex)

	opts := []drive.Option{drive.WithLogger(a.logger)}
	if a.announcer != nil {
		opts = append(opts, drive.WithSink(a.announcer))
	}
	if a.store != nil {
		opts = append(opts, drive.WithRecorder(a.store))
	}
	if a.webServer != nil {
		opts = append(opts, drive.WithPublisher(a.webServer))
	}

	loop, err := drive.NewLoop(engine, a.source, a.detector, a.actuator, dc, opts...)
	if err != nil {
		return err
	}
	a.loop = loop
	if a.webServer != nil {
		a.webServer.SetController(loop)
	}
	return nil
}

// Run drives until ctx is cancelled or the loop ends on its own.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil {
		return errors.New("autocar: Init not called")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if a.webServer != nil {
		go func() { webErr <- a.webServer.Start(ctx) }()
	}

	if !a.config.Drive.AutoStart {
		a.logger.Info("waiting for start from dashboard", "addr", a.config.WebAddr)
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- a.loop.Run(ctx) }()

	select {
	case err := <-loopErr:
		return err
	case err := <-webErr:
		if err == nil {
			return <-loopErr
		}
		// Without the dashboard a non-autostart car can never start
		a.logger.Error("dashboard stopped", "error", err)
		cancel()
		return errors.Join(err, <-loopErr)
	}
}

// Shutdown releases what the loop does not own. The loop releases the
// camera, detector and motors itself; if it was never built they are
// released here.
func (a *App) Shutdown() {
	if a.loop == nil {
		if a.actuator != nil {
			if err := a.actuator.Stop(); err != nil {
				a.logger.Warn("final stop failed", "error", err)
			}
			if err := a.actuator.Cleanup(); err != nil {
				a.logger.Error("motor cleanup failed", "error", err)
			}
		}
		if a.source != nil {
			if err := a.source.Close(); err != nil {
				a.logger.Warn("camera close failed", "error", err)
			}
		}
		if a.detector != nil {
			if err := a.detector.Close(); err != nil {
				a.logger.Warn("detector close failed", "error", err)
			}
		}
	}
	if a.announcer != nil {
		if err := a.announcer.Close(); err != nil {
			a.logger.Warn("closing announcer", "error", err)
		}
	}
	if a.voice != nil {
		if err := a.voice.Close(); err != nil {
			a.logger.Warn("closing voice", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing session log", "error", err)
		}
	}
	a.logger.Info("shutdown complete")
}

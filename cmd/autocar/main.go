// autocar drives a small vehicle around pedestrians using a camera and an
// object detector, warning them by voice.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-autocar/internal/config"
	"github.com/teslashibe/go-autocar/internal/log"
	"github.com/teslashibe/go-autocar/pkg/autocar"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Error("reading .env", "error", err)
		os.Exit(1)
	}

	cfg := parseFlags()

	level := cfg.EffectiveLogLevel()
	if cfg.LogFile != "" {
		log.InitWithFile(level, log.DefaultFileOptions(cfg.LogFile))
	} else {
		log.Init(level)
	}

	app, err := autocar.New(cfg, log.L())
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		app.Shutdown()
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	err = app.Run(ctx)
	app.Shutdown()
	if err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags layers command line flags over the environment.
func parseFlags() autocar.Config {
	cfg := autocar.DefaultConfig()
	cfg.LoadEnvConfig()

	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log at debug level regardless of --log-level")
	flag.BoolVar(&cfg.DebugFrames, "debug-frames", cfg.DebugFrames, "Print a trace line for every frame")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotated file")

	flag.StringVar(&cfg.CameraPreset, "camera", cfg.CameraPreset, "Camera preset: default (USB), picam, low-latency")
	flag.IntVar(&cfg.CameraIndex, "camera-index", cfg.CameraIndex, "USB camera index")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Path to the YOLO ONNX model")

	flag.StringVar(&cfg.SteeringPreset, "steering", cfg.SteeringPreset, "Steering preset: default, cautious, aggressive")
	flag.Float64Var(&cfg.Drive.MaxFPS, "max-fps", cfg.Drive.MaxFPS, "Frame rate cap (0 = unlimited)")
	flag.BoolVar(&cfg.Drive.StopOnFault, "stop-on-fault", cfg.Drive.StopOnFault, "Stop the motors when a frame fails")
	flag.BoolVar(&cfg.Drive.AutoStart, "auto-start", cfg.Drive.AutoStart, "Drive immediately instead of waiting for the dashboard")

	flag.StringVar(&cfg.Motor, "motor", cfg.Motor, "Motor link: serial, http, dry")
	flag.StringVar(&cfg.SerialPort, "serial", cfg.SerialPort, "Serial port of the motor controller")
	flag.IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "Serial baud rate (0 = 9600)")
	flag.StringVar(&cfg.MotorURL, "motor-url", cfg.MotorURL, "Base URL of the HTTP motor controller")

	flag.StringVar(&cfg.Voice, "voice", cfg.Voice, "Warning voice: google, openai, chain, off")
	flag.StringVar(&cfg.Language, "lang", cfg.Language, "Voice language code")
	flag.StringVar(&cfg.WarnPhrase, "warn-phrase", cfg.WarnPhrase, "Phrase spoken when a pedestrian is ahead")
	flag.StringVar(&cfg.PlayerCommand, "player", cfg.PlayerCommand, "Audio player: mpg123, omxplayer, aplay or a full command line")

	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Session log database (empty disables)")
	flag.StringVar(&cfg.WebAddr, "web", cfg.WebAddr, "Dashboard address (empty disables)")
	flag.StringVar(&cfg.WebStatic, "web-static", cfg.WebStatic, "Directory of dashboard static files")
	flag.Float64Var(&cfg.CameraFPS, "web-fps", cfg.CameraFPS, "Frames per second streamed to the dashboard")

	flag.Parse()
	return cfg
}

// vvcache — a caching proxy in front of a local VOICEVOX-style HTTP
// text-to-speech engine.
//
// Usage:
//
//	vvcache [options] <text>
//	vvcache speakers
//	vvcache devices [--full] [--json]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/vvcache/internal/audiocodec"
	"github.com/hammamikhairi/vvcache/internal/cachemanager"
	"github.com/hammamikhairi/vvcache/internal/config"
	"github.com/hammamikhairi/vvcache/internal/diskcache"
	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/filler"
	"github.com/hammamikhairi/vvcache/internal/logger"
	"github.com/hammamikhairi/vvcache/internal/memcache"
	"github.com/hammamikhairi/vvcache/internal/orchestrator"
	"github.com/hammamikhairi/vvcache/internal/player"
	"github.com/hammamikhairi/vvcache/internal/retrypolicy"
	"github.com/hammamikhairi/vvcache/internal/ttsengine"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "speakers":
			return runSpeakers(args[1:])
		case "devices":
			return stubSubcommand("devices")
		case "--init":
			return stubSubcommand("--init")
		case "--clear":
			return runClear(args[1:])
		case "--benchmark":
			return stubSubcommand("--benchmark")
		case "--test":
			return stubSubcommand("--test")
		}
	}
	return runTTS(args)
}

// stubSubcommand implements the thin-stub surface spec §1/§6 names as
// existing subcommands without requiring full behavior in this build.
func stubSubcommand(name string) int {
	fmt.Fprintf(os.Stderr, "%s: not implemented in this build\n", name)
	return 1
}

func runClear(args []string) int {
	fs := flag.NewFlagSet("--clear", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, log := loadConfigAndLogger(*cfgPath, false, "")
	cacheDir, err := diskcache.Resolve(cfg.Cache.Directory, cfg.Cache.UseExecutableBaseDirectory)
	if err != nil {
		log.Error("resolving cache directory: %v", err)
		return exitFor(err)
	}

	disk, err := diskcache.New(cacheDir, cacheExpiration(cfg), audiocodec.New(log), log)
	if err != nil {
		log.Error("opening cache: %v", err)
		return exitFor(err)
	}

	mem := memcache.New(int64(cfg.Cache.MemoryCacheSizeMB)*1<<20, cacheExpiration(cfg))
	mgr := cachemanager.New(mem, disk, int64(cfg.Cache.MaxSizeGB*(1<<30)), log)
	mgr.Clear()
	fmt.Println("cache cleared")
	return 0
}

func runSpeakers(args []string) int {
	fs := flag.NewFlagSet("speakers", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, log := loadConfigAndLogger(*cfgPath, false, "")
	engine := ttsengine.New(cfg.VoiceVox.BaseURL, log, ttsengine.WithHTTPTimeout(cfg.VoiceVox.ConnectionTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.VoiceVox.ConnectionTimeout)
	defer cancel()

	speakers, err := engine.ListSpeakers(ctx)
	if err != nil {
		log.Error("listing speakers: %v", err)
		return exitFor(err)
	}
	for _, s := range speakers {
		fmt.Printf("%s (%s)\n", s.Name, s.Version)
		for _, style := range s.Styles {
			fmt.Printf("  %d: %s\n", style.ID, style.Name)
		}
	}
	return 0
}

func runTTS(args []string) int {
	fs := flag.NewFlagSet("vvcache", flag.ContinueOnError)
	speaker := fs.Int("speaker", 0, "speaker id (0 = use configured default)")
	fs.IntVar(speaker, "s", 0, "shorthand for --speaker")
	speed := fs.Float64("speed", domain.DefaultSpeed, "speech speed scale")
	pitch := fs.Float64("pitch", domain.DefaultPitch, "speech pitch scale")
	volume := fs.Float64("volume", domain.DefaultVolume, "speech volume scale")
	noCache := fs.Bool("no-cache", false, "bypass segmentation and the cache entirely")
	cacheOnly := fs.Bool("cache-only", false, "fail instead of synthesizing if any segment is uncached")
	out := fs.String("out", "", "write synthesized audio to this path")
	fs.StringVar(out, "o", "", "shorthand for --out")
	noPlay := fs.Bool("no-play", false, "do not play audio through the output device")
	verbose := fs.Bool("verbose", false, "enable verbose/debug logging")
	logLevel := fs.String("log-level", "", "off|normal|verbose (overrides --verbose)")
	logFormat := fs.String("log-format", "text", "text|json")
	cfgPath := fs.String("config", "", "path to config file")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: vvcache [options] <text>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return 1
	}
	text := fs.Arg(0)

	level := logger.LevelNormal
	if *verbose {
		level = logger.LevelVerbose
	}
	switch *logLevel {
	case "off":
		level = logger.LevelOff
	case "verbose":
		level = logger.LevelVerbose
	case "normal":
		level = logger.LevelNormal
	}

	format := logger.FormatText
	if *logFormat == "json" {
		format = logger.FormatJSON
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		return domain.KindInvalidSettings.ExitCode()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return domain.KindInvalidSettings.ExitCode()
	}

	log := logger.NewWithFormat(level, os.Stderr, format)

	speakerID := *speaker
	if speakerID == 0 {
		speakerID = cfg.VoiceVox.DefaultSpeaker
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupt received, shutting down")
		cancel()
	}()

	orch, err := buildOrchestrator(cfg, log, ctx)
	if err != nil {
		log.Error("initialization failed: %v", err)
		return exitFor(err)
	}

	opts := orchestrator.Options{
		Text:      text,
		SpeakerID: speakerID,
		Speed:     *speed,
		Pitch:     *pitch,
		Volume:    *volume,
		NoCache:   *noCache,
		CacheOnly: *cacheOnly,
		NoPlay:    *noPlay,
		OutPath:   *out,
	}

	if err := orch.Run(ctx, opts); err != nil {
		log.Error("tts failed: %v", err)
		return exitFor(err)
	}
	st := orch.Cache.MemStats()
	log.Debug("memory cache: %d items, %d/%d bytes, %d hits, %d misses, hit rate %.2f", st.Items, st.CurrentBytes, st.MaxBytes, st.Hits, st.Misses, st.HitRate)
	return 0
}

// buildOrchestrator wires every core component per spec §4.J/§6.
func buildOrchestrator(cfg config.Config, log *logger.Logger, ctx context.Context) (*orchestrator.Orchestrator, error) {
	codec := audiocodec.New(log)

	cacheDir, err := diskcache.Resolve(cfg.Cache.Directory, cfg.Cache.UseExecutableBaseDirectory)
	if err != nil {
		return nil, err
	}
	disk, err := diskcache.New(cacheDir, cacheExpiration(cfg), codec, log)
	if err != nil {
		return nil, err
	}
	mem := memcache.New(int64(cfg.Cache.MemoryCacheSizeMB)*1<<20, cacheExpiration(cfg))
	mgr := cachemanager.New(mem, disk, int64(cfg.Cache.MaxSizeGB*(1<<30)), log)

	engine := ttsengine.New(cfg.VoiceVox.BaseURL, log, ttsengine.WithHTTPTimeout(cfg.VoiceVox.ConnectionTimeout))
	retry := retrypolicy.New(log)

	var fillerStore *filler.Store
	if cfg.Filler.Enabled {
		fillerDir, err := diskcache.Resolve(cfg.Filler.Directory, cfg.Cache.UseExecutableBaseDirectory)
		if err != nil {
			return nil, err
		}
		fillerStore = filler.New(fillerDir, cfg.Filler.FillerTexts, cfg.VoiceVox.DefaultSpeaker, engine, codec, log, false)
		if err := fillerStore.Initialize(ctx); err != nil {
			log.Warn("filler store initialization failed: %v", err)
		}
	} else {
		fillerStore = filler.New("", nil, cfg.VoiceVox.DefaultSpeaker, engine, codec, log, true)
	}

	return &orchestrator.Orchestrator{
		Engine: engine,
		Retry:  retry,
		Cache:  mgr,
		Codec:  codec,
		Player: player.New(log),
		Filler: fillerStore,
		Log:    log,
	}, nil
}

func cacheExpiration(cfg config.Config) time.Duration {
	return time.Duration(cfg.Cache.ExpirationDays) * 24 * time.Hour
}

func exitFor(err error) int {
	if de, ok := domain.AsError(err); ok {
		return de.Kind.ExitCode()
	}
	return 1
}

func loadConfigAndLogger(cfgPath string, verbose bool, logFormat string) (config.Config, *logger.Logger) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		cfg = config.Default()
	}
	level := logger.LevelNormal
	if verbose {
		level = logger.LevelVerbose
	}
	var out io.Writer = os.Stderr
	return cfg, logger.New(level, out)
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/stratalign/pmocast/internal/audio"
	"github.com/stratalign/pmocast/internal/cache"
	"github.com/stratalign/pmocast/internal/flags"
	"github.com/stratalign/pmocast/internal/library"
	"github.com/stratalign/pmocast/internal/mediasession"
	"github.com/stratalign/pmocast/internal/podcast"
	"github.com/stratalign/pmocast/internal/source"
	"github.com/stratalign/pmocast/internal/utils"
)

// settings is the resolved configuration shared by the commands.
type settings struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int

	Rate     float64
	Volume   float64
	Greeting string

	CacheNamespace   string
	MemoryCapacity   int64
	DiskCache        bool
	CompressionLevel int

	LibraryPath  string
	StateDir     string
	MediaSession bool
}

func loadSettings() (settings, error) {
	s := settings{
		BaseURL:           viper.GetString("server.base_url"),
		Timeout:           viper.GetDuration("server.timeout"),
		RequestsPerMinute: viper.GetInt("speech.requests_per_minute"),
		Rate:              viper.GetFloat64("playback.rate"),
		Volume:            viper.GetFloat64("playback.volume"),
		Greeting:          viper.GetString("playback.greeting"),
		CacheNamespace:    viper.GetString("cache.namespace"),
		MemoryCapacity:    viper.GetInt64("cache.memory_capacity"),
		DiskCache:         viper.GetBool("cache.disk"),
		CompressionLevel:  viper.GetInt("cache.compression_level"),
		LibraryPath:       utils.ExpandPath(viper.GetString("library.path")),
		StateDir:          utils.ExpandPath(viper.GetString("state.dir")),
		MediaSession:      viper.GetBool("mediasession.enabled"),
	}
	if s.BaseURL == "" {
		return s, errors.New("server.base_url is not set")
	}

	scope := gap.NewScope(gap.User, "pmocast")
	if s.LibraryPath == "" {
		dirs, err := scope.ConfigDirs()
		if err != nil {
			return s, fmt.Errorf("could not find configuration directory: %w", err)
		}
		s.LibraryPath = filepath.Join(dirs[0], "library.yml")
	}
	if s.StateDir == "" {
		dir, err := scope.DataPath("state")
		if err != nil {
			return s, fmt.Errorf("could not find data directory: %w", err)
		}
		s.StateDir = dir
	}
	return s, nil
}

func (s settings) sourceConfig() source.Config {
	return source.Config{
		BaseURL:           s.BaseURL,
		Timeout:           s.Timeout,
		RequestsPerMinute: s.RequestsPerMinute,
		Logger:            log.Default().WithPrefix("source"),
	}
}

func (s settings) cacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	if s.CacheNamespace != "" {
		cfg.Namespace = s.CacheNamespace
	}
	if s.MemoryCapacity > 0 {
		cfg.MemoryCapacity = s.MemoryCapacity
	}
	if s.CompressionLevel > 0 {
		cfg.CompressionLevel = s.CompressionLevel
	}
	cfg.Disk = s.DiskCache
	cfg.Logger = log.Default().WithPrefix("cache")
	return cfg
}

func (s settings) playerConfig() audio.PlayerConfig {
	cfg := audio.DefaultPlayerConfig()
	cfg.Volume = s.Volume
	cfg.Rate = s.Rate
	cfg.Logger = log.Default().WithPrefix("audio")
	return cfg
}

// app holds the components of one listening session.
type app struct {
	settings settings
	client   *source.Client
	cache    *cache.EpisodeCache
	player   *audio.Player
	media    mediasession.Session
	library  *library.Library
	engine   *podcast.Engine
}

// newApp wires the playback stack. The library is optional: without it
// only raw descriptors can be played.
func newApp(s settings, lib *library.Library) (*app, error) {
	client, err := source.NewClient(s.sourceConfig())
	if err != nil {
		return nil, err
	}

	player, err := audio.NewPlayer(s.playerConfig())
	if err != nil {
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}

	a := &app{
		settings: s,
		client:   client,
		cache:    cache.New(s.cacheConfig()),
		player:   player,
		media:    mediasession.Noop{},
		library:  lib,
	}

	if s.MediaSession {
		m, err := mediasession.NewMPRIS("pmocast", log.Default().WithPrefix("mpris"))
		if err != nil {
			log.Warn("Media session unavailable", "err", err)
		} else {
			a.media = m
		}
	}

	cfg := podcast.Config{
		Source: client,
		Cache:  a.cache,
		Output: player,
		Media:  a.media,
		Rate:   s.Rate,
		Logger: log.Default().WithPrefix("podcast"),
	}
	if lib != nil {
		cfg.Catalog = lib
	}
	a.engine, err = podcast.New(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases everything newApp acquired.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if st := a.cache.Stats(); st.Hits+st.Misses > 0 {
		log.Debug("Cache stats", "hits", st.Hits, "misses", st.Misses, "writes", st.Writes)
	}
	errs = append(errs, a.media.Close(), a.player.Close(), a.cache.Close())
	return errors.Join(errs...)
}

// openFlags opens the persistent flag store under the state directory.
func openFlags(s settings) (*flags.Store, error) {
	return flags.Open(flags.Options{
		Dir:    s.StateDir,
		Logger: log.Default().WithPrefix("flags"),
	})
}

// loadLibrary loads the episode library. A missing file yields nil.
func loadLibrary(path string) (*library.Library, error) {
	lib, err := library.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load library: %w", err)
	}
	return lib, nil
}

package config

import (
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoaderOptions configures a Loader. Path is the YAML config file; Watch
// asks the loader to start an fsnotify watch on Path and invoke OnChange
// whenever it changes. Only file changes trigger a reload: the IPC
// Reload request does not call into the Loader.
type LoaderOptions struct {
	Path     string
	Watch    bool
	OnChange func(*Config) error
}

// Loader loads and, optionally, live-reloads a Config from a single YAML
// file, with environment-variable interpolation applied to every string
// leaf before unmarshal.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
}

// NewLoader creates a Loader for the YAML file at opts.Path.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads, expands, validates, and unmarshals the config file,
// starting an fsnotify watch afterward if opts.Watch is set.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.loadOnce()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		if err := l.startWatch(); err != nil {
			return nil, fmt.Errorf("config: start watch: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadOnce() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(l.options.Path), l.parser); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", l.options.Path, err)
	}

	expanded, ok := ExpandEnvVarsInData(k.Raw()).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("config: unexpected shape after env expansion")
	}

	k = koanf.New(".")
	if err := k.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load expanded values: %w", err)
	}
	l.koanf = k

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startWatch begins an fsnotify watch on the config file itself and
// reloads on any write or create event it reports.
func (l *Loader) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(l.options.Path); err != nil {
		w.Close()
		return err
	}
	l.watcher = w

	go func() {
		for {
			select {
			case <-l.stopChan:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				l.reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("config: watch error: %v", err)
			}
		}
	}()
	return nil
}

func (l *Loader) reload() {
	cfg, err := l.loadOnce()
	if err != nil {
		log.Printf("config: reload failed: %v", err)
		return
	}
	if l.options.OnChange == nil {
		return
	}
	if err := l.options.OnChange(cfg); err != nil {
		log.Printf("config: OnChange callback failed: %v", err)
	}
}

// Stop ends the fsnotify watch, if one was started.
func (l *Loader) Stop() {
	close(l.stopChan)
	if l.watcher != nil {
		l.watcher.Close()
	}
}

// SetOnChange installs (or replaces) the reload callback.
func (l *Loader) SetOnChange(callback func(*Config) error) {
	l.options.OnChange = callback
}

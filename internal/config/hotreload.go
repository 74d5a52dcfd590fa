package config

import (
	"fmt"
	"time"

	"github.com/agilira/argus"

	"github.com/mcaptcha/powcore/pkg/defense"
)

// DefenseWatcher watches a configuration file for an updated Defense
// curve and invokes onChange whenever a valid one is parsed. Grounded
// on agilira-balios/hot-reload.go's HotConfig (argus.Config{PollInterval},
// argus.UniversalConfigWatcherWithConfig, Watcher.Start/Stop/IsRunning).
type DefenseWatcher struct {
	watcher *argus.Watcher
}

// WatchDefense starts watching path (JSON/YAML/TOML/HCL/INI/Properties,
// per argus's format-autodetection) for a top-level "defense_levels"
// key in the same "threshold:factor,..." wire format as
// POWCORE_DEFENSE_LEVELS. onChange is called with the new Defense on
// every successful parse; parse or validation failures are reported
// through onErr instead and leave the prior Defense in place.
func WatchDefense(path string, pollInterval time.Duration, onChange func(defense.Defense), onErr func(error)) (*DefenseWatcher, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	callback := func(configData map[string]interface{}) {
		raw, ok := configData["defense_levels"]
		if !ok {
			onErr(fmt.Errorf("config %s: missing defense_levels key", path))
			return
		}
		s, ok := raw.(string)
		if !ok {
			onErr(fmt.Errorf("config %s: defense_levels must be a string, got %T", path, raw))
			return
		}
		levels, err := parseDefenseLevels(s)
		if err != nil {
			onErr(fmt.Errorf("config %s: %w", path, err))
			return
		}
		d, err := defense.New(levels)
		if err != nil {
			onErr(fmt.Errorf("config %s: %w", path, err))
			return
		}
		onChange(d)
	}

	w, err := argus.UniversalConfigWatcherWithConfig(path, callback, argus.Config{PollInterval: pollInterval})
	if err != nil {
		return nil, err
	}
	return &DefenseWatcher{watcher: w}, nil
}

// Start begins watching, tolerating a watcher already running.
func (w *DefenseWatcher) Start() error {
	if w.watcher.IsRunning() {
		return nil
	}
	return w.watcher.Start()
}

// Stop stops watching the configuration file.
func (w *DefenseWatcher) Stop() error {
	return w.watcher.Stop()
}

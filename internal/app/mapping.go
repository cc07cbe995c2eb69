package app

import (
	"fmt"
	"strings"
	"time"

	"gradewatch/internal/auth"
	"gradewatch/internal/config"
	"gradewatch/internal/observability/ops"
	"gradewatch/internal/source"
	"gradewatch/internal/storage"
	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

func mapLogConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapOpsConfig(oc config.OpsConfig) (ops.Config, error) {
	out := ops.Config{
		Enabled:       oc.Enabled,
		Addr:          strings.TrimSpace(oc.Addr),
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Metrics:       oc.Metrics == nil || *oc.Metrics,
		PprofPrefix:   strings.TrimSpace(oc.PprofPrefix),
	}
	if out.Addr == "" {
		out.Addr = config.DefaultOpsAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second); err != nil {
		return ops.Config{}, err
	}
	// pprof profiles stream for up to 30s by default.
	if out.WriteTimeout, err = config.ParseDurationOrDefault("ops.write_timeout", oc.WriteTimeout, 60*time.Second); err != nil {
		return ops.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, 60*time.Second); err != nil {
		return ops.Config{}, err
	}
	return out, nil
}

func mapAuthConfig(cfg *config.Config, s config.Settings) auth.Config {
	return auth.Config{
		LoginURL:      s.LoginURL,
		ServiceURL:    s.ServiceURL,
		WarmupURL:     s.WarmupURL,
		Username:      strings.TrimSpace(cfg.Account.Username),
		Password:      cfg.Account.Password,
		UsernameField: s.UsernameField,
		PasswordField: s.PasswordField,
		UserAgent:     s.UserAgent,
		Timeout:       s.HTTPTimeout,
	}
}

func mapSourceConfig(s config.Settings) source.Config {
	return source.Config{
		URL:         s.SourceURL,
		Referer:     s.Referer,
		RowsPath:    s.RowsPath,
		SuccessCode: s.SuccessCode,
	}
}

func mapLoopConfig(s config.Settings) watcher.Config {
	return watcher.Config{
		Attempts:      s.Attempts,
		RetryDelay:    s.RetryDelay,
		MinInterval:   s.MinInterval,
		MaxInterval:   s.MaxInterval,
		IdentityField: s.IdentityField,
	}
}

// staleAfter is the longest a healthy loop can go without a successful cycle:
// the longest poll wait plus a full recovery with every call timing out.
func staleAfter(s config.Settings) time.Duration {
	recovery := time.Duration(s.Attempts) * (s.RetryDelay + 3*s.HTTPTimeout)
	return 2 * (s.MaxInterval + recovery)
}

// Package lindconfig loads lind-go's on-disk configuration, in the
// same ini-backed style as rclone's own fs/config package (both sit
// atop the go-ini/ini library).
package lindconfig

import (
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Config holds the tunables an embedding program can set before
// bringing up the microvisor. DefaultConfig() returns the defaults; the
// zero value leaves every field empty.
type Config struct {
	// DataDir holds lind.metadata.db and the linddata.<inode> blobs.
	DataDir string
	// MaxFD is the size of each cage's file-descriptor table.
	MaxFD int
	// PipeCapacity is the default ring-buffer size for pipe().
	PipeCapacity int
	// EphemeralLow/EphemeralHigh record the ephemeral port range. The
	// socket layer does not read them; its own constants, with the same
	// default values, bound the ports ephemeral INET binds draw from.
	EphemeralLow  int
	EphemeralHigh int
	// ShmMin/ShmMax record shmget's size bounds. The shm engine does not
	// read them; it checks its own constants, with the same default
	// values.
	ShmMin int64
	ShmMax int64
	// LogLevel is one of "error", "info", "debug".
	LogLevel string
}

// DefaultConfig mirrors spec.md's named constants (MAXFD=1024, the
// ephemeral range 32768-60999, ...).
func DefaultConfig() Config {
	return Config{
		DataDir:       "./lind-data",
		MaxFD:         1024,
		PipeCapacity:  65536,
		EphemeralLow:  32768,
		EphemeralHigh: 60999,
		ShmMin:        1,
		ShmMax:        32 * 1024 * 1024,
		LogLevel:      "info",
	}
}

// Load reads an ini file at path, overlaying it on DefaultConfig.
// A missing file is not an error: the defaults apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := ini.LooseLoad(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "lindconfig: loading %s", path)
	}
	sec := f.Section("microvisor")
	cfg.DataDir = sec.Key("data_dir").MustString(cfg.DataDir)
	cfg.MaxFD = sec.Key("max_fd").MustInt(cfg.MaxFD)
	cfg.PipeCapacity = sec.Key("pipe_capacity").MustInt(cfg.PipeCapacity)
	cfg.EphemeralLow = sec.Key("ephemeral_low").MustInt(cfg.EphemeralLow)
	cfg.EphemeralHigh = sec.Key("ephemeral_high").MustInt(cfg.EphemeralHigh)
	cfg.ShmMin = sec.Key("shm_min").MustInt64(cfg.ShmMin)
	cfg.ShmMax = sec.Key("shm_max").MustInt64(cfg.ShmMax)
	cfg.LogLevel = sec.Key("log_level").MustString(cfg.LogLevel)
	return cfg, nil
}

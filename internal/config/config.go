// Package config builds the explicit configuration record for a pipeline run.
// The process environment is read exactly once, by Load; every component
// receives the resulting *Config instead of looking anything up itself.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NielsdaWheelz/extpipe/internal/baseline"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/status"
)

// Recognized environment keys.
const (
	EnvRoot              = "EXTPIPE_ROOT"
	EnvHelpers           = "EXTPIPE_HELPERS"
	EnvSource            = "EXTPIPE_SOURCE"
	EnvArtifactCache     = "EXTPIPE_ARTIFACT_CACHE"
	EnvCheck             = "EXTPIPE_CHECK"
	EnvNoIndex           = "EXTPIPE_NO_INDEX"
	EnvParallelNoSpinner = "EXTPIPE_PARALLEL_NO_SPINNER"
	EnvParallel          = "EXTPIPE_PARALLEL"
	EnvEnvs              = "EXTPIPE_ENVS"
	EnvBaseline          = "EXTPIPE_BASELINE"
	EnvWorkDir           = "EXTPIPE_WORKDIR"
)

// VersionFile is read from the source tree when the helpers file leaves the
// package version empty.
const VersionFile = "VERSION.txt"

// Config is the configuration record for one invocation.
type Config struct {
	Root          string
	HelpersPath   string
	SourceDir     string
	ArtifactCache string
	BaselinePath  string
	WorkDir       string

	CheckMode         status.CheckMode
	NoIndex           bool
	ParallelNoSpinner bool
	Parallel          int
	Environments      []string

	Package  PackageIdentity
	Commands Commands
	Report   ReportSettings

	// BaseEnv is the environment inherited by every external command.
	BaseEnv []string
}

// Baseline returns the known-failures manifest handle.
func (c *Config) Baseline() baseline.Manifest {
	return baseline.Manifest{Path: c.BaselinePath}
}

// Load reads env once and returns a validated Config.
func Load(env Env) (*Config, error) {
	root := strings.TrimSpace(env.Getenv(EnvRoot))
	if root == "" {
		return nil, errors.NewWithDetails(errors.EHelpersMissing, EnvRoot+" is not set", map[string]string{
			"hint": "set " + EnvRoot + " to the package root containing " + DefaultHelpersPath,
		})
	}
	root = absPath(root)
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return nil, errors.NewWithDetails(errors.EHelpersMissing, "package root is not a directory: "+root, map[string]string{
			"hint": "is " + EnvRoot + " set to the package root?",
		})
	}

	cfg := &Config{
		Root:    root,
		BaseEnv: env.Environ(),
	}
	cfg.HelpersPath = resolve(root, env.Getenv(EnvHelpers), DefaultHelpersPath)
	cfg.SourceDir = resolve(root, env.Getenv(EnvSource), "src")
	cfg.ArtifactCache = resolve(root, env.Getenv(EnvArtifactCache), "upstream")
	cfg.BaselinePath = resolve(cfg.SourceDir, env.Getenv(EnvBaseline), baseline.DefaultName)
	cfg.WorkDir = WorkDir(env)

	var err error
	if cfg.CheckMode, err = status.ParseCheckMode(strings.TrimSpace(env.Getenv(EnvCheck))); err != nil {
		return nil, err
	}
	if cfg.NoIndex, err = parseBool(env, EnvNoIndex, true); err != nil {
		return nil, err
	}
	if cfg.ParallelNoSpinner, err = parseBool(env, EnvParallelNoSpinner, true); err != nil {
		return nil, err
	}

	helpers, err := LoadHelpers(cfg.HelpersPath)
	if err != nil {
		return nil, err
	}
	cfg.Package = helpers.Package
	cfg.Commands = helpers.Commands
	cfg.Report = helpers.Report
	cfg.Environments = helpers.Environments
	if v := strings.TrimSpace(env.Getenv(EnvEnvs)); v != "" {
		cfg.Environments = splitList(v)
	}

	if cfg.Package.Version == "" {
		if cfg.Package.Version, err = readVersionFile(filepath.Join(cfg.SourceDir, VersionFile)); err != nil {
			return nil, err
		}
	}

	cfg.Parallel = len(cfg.Environments)
	if v := strings.TrimSpace(env.Getenv(EnvParallel)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errors.New(errors.EInvalidConfig, EnvParallel+" must be a positive integer, got "+strconv.Quote(v))
		}
		cfg.Parallel = n
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WorkDir returns the parent directory of run directories. Commands that
// only inspect past runs use it without loading the helpers file.
func WorkDir(env Env) string {
	dir := strings.TrimSpace(env.Getenv(EnvWorkDir))
	if dir == "" {
		dir = os.TempDir()
	}
	return absPath(dir)
}

// resolve returns def joined to base when v is empty, v joined to base when
// v is relative, and v itself otherwise.
func resolve(base, v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		v = def
	}
	if filepath.IsAbs(v) {
		return filepath.Clean(v)
	}
	return filepath.Join(base, v)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func parseBool(env Env, key string, def bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(env.Getenv(key)))
	switch v {
	case "":
		return def, nil
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}
	return false, errors.New(errors.EInvalidConfig, key+" must be a boolean (1/0/true/false/yes/no), got "+strconv.Quote(v))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readVersionFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WrapWithDetails(errors.EInvalidConfig, "package version is not set and "+VersionFile+" is unreadable", err, map[string]string{
			"hint": "set package.version in the helpers file or create " + path,
		})
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", errors.New(errors.EInvalidConfig, path+" is empty")
	}
	return v, nil
}

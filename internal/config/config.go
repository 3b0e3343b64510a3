// Package config loads the YAML configuration this client ships with:
// bootstrap CM endpoints, timeouts, and log settings.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/junbin-yang/steamcm/internal/logger"
)

var (
	APPNAME    = "steamcm"
	VERSION    = "undefined"
	BUILD_TIME = "undefined"
)

// Endpoint is a single bootstrap CM server.
type Endpoint struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

// Config is the on-disk shape of steamcm.yml.
type Config struct {
	Bootstrap []Endpoint `yaml:"bootstrap"`

	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	IdleTimeoutSeconds    int `yaml:"idle_timeout_seconds"`

	Logger struct {
		Dir    string `yaml:"dir"`
		Level  string `yaml:"level"`
		Rotate bool   `yaml:"rotate"`
	} `yaml:"logger"`
}

var configPath = flag.String("config", "", "path to "+APPNAME+".yml (defaults next to the binary, then /etc)")

func init() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stdout, APPNAME+", version "+VERSION+" (built "+BUILD_TIME+")")
		flag.PrintDefaults()
	}
}

// Parse reads the configuration file, wires the logger accordingly, and
// returns the parsed Config. Panics on a missing or malformed file, the same
// as the teacher's loader does — a client with no config has nothing
// sensible to run.
func Parse() *Config {
	if !flag.Parsed() {
		flag.Parse()
	}

	cfile := *configPath
	if cfile == "" {
		ex, err := os.Executable()
		if err != nil {
			panic(err)
		}
		cfile = filepath.Join(filepath.Dir(ex), APPNAME+".yml")
		if _, err := os.Stat(cfile); os.IsNotExist(err) {
			cfile = filepath.Join("/etc", APPNAME+".yml")
		}
	}

	data, err := os.ReadFile(cfile)
	if err != nil {
		panic(err)
	}

	conf := new(Config)
	if err := yaml.Unmarshal(data, conf); err != nil {
		panic(err)
	}

	defer logger.Sync()

	if conf.Logger.Rotate {
		dir := conf.Logger.Dir
		if dir == "" {
			if ex, err := os.Executable(); err == nil {
				dir = filepath.Dir(ex)
			} else {
				dir = "."
			}
		}
		out := logger.NewProductionRotateByTime(filepath.Join(dir, APPNAME+".log"))
		logger.ReplaceDefault(logger.New(out, logger.InfoLevel))
	}

	switch conf.Logger.Level {
	case "debug":
		logger.SetLevel(logger.DebugLevel)
	case "warn":
		logger.SetLevel(logger.WarnLevel)
	case "error":
		logger.SetLevel(logger.ErrorLevel)
	default:
		logger.SetLevel(logger.InfoLevel)
	}

	if conf.ConnectTimeoutSeconds == 0 {
		conf.ConnectTimeoutSeconds = 1
	}
	if conf.IdleTimeoutSeconds == 0 {
		conf.IdleTimeoutSeconds = 1
	}

	return conf
}

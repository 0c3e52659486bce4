package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runrelay/runrelay/internal/api"
	"github.com/runrelay/runrelay/internal/pubsub"
	"github.com/runrelay/runrelay/internal/repo"
	"github.com/runrelay/runrelay/internal/runs"
	"github.com/runrelay/runrelay/internal/streams"
	"github.com/runrelay/runrelay/pkg/environment"
	"github.com/runrelay/runrelay/pkg/errors"
)

type Config struct {
	Environment environment.Env `yaml:"Environment"`

	API      api.Config     `yaml:"API"`
	Database repo.Config    `yaml:"Database"`
	Runs     runs.Config    `yaml:"Runs"`
	Streams  streams.Config `yaml:"Streams"`
	PubSub   pubsub.Config  `yaml:"PubSub"`

	Sources struct {
		Runs   repo.DataSource `yaml:"runs"`
		Chunks repo.DataSource `yaml:"chunks"`
	} `yaml:"Sources"`

	Archive struct {
		Path     string        `yaml:"path"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"Archive"`
}

func loadConfig() (*Config, error) {
	path, err := filepath.Abs("config.yaml")
	if err != nil {
		return nil, errors.WrapFail(err, "build path to config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFail(err, "read \"config.yaml\"")
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, errors.WrapFail(err, "parse yaml")
	}

	if envFromFlags := getEnvFromFlags(); envFromFlags != nil {
		cfg.Environment = *envFromFlags
	}

	return &cfg, nil
}

func getEnvFromFlags() *environment.Env {
	raw := flag.String("env", "", "environment (dev, prod)")
	flag.Parse()
	if *raw == "" {
		return nil
	}

	env := environment.FromString(*raw)
	return &env
}

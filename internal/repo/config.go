package repo

import "time"

type StorageKind string

const (
	StorageMongo  StorageKind = "mongo"
	StorageMemory StorageKind = "memory"
)

type Config struct {
	Storage StorageKind `yaml:"storage"`
	Mongo   MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	Database string `yaml:"database"`

	Auth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`

	Pool struct {
		MinSize uint64 `yaml:"minSize"`
		MaxSize uint64 `yaml:"maxSize"`
	} `yaml:"pool"`
}

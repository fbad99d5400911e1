package application

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/amqp"
	"github.com/paulvitic/ddd-projector/config"
)

// Event log drivers.
const (
	MemoryDriver = "memory"
	MongoDriver  = "mongo"
	SqliteDriver = "sqlite"
)

type MongoSettings struct {
	URI      string `json:"uri" env:"MONGODB_URI"`
	Database string `json:"database" env:"MONGODB_DATABASE"`
}

type EventLogSettings struct {
	Driver     string `json:"driver" env:"EVENT_LOG_DRIVER"`
	Collection string `json:"collection" env:"EVENT_LOG_COLLECTION"`
	Path       string `json:"path" env:"EVENT_LOG_PATH"`
}

// Settings is the configuration of a projector service.
type Settings struct {
	Profile       string                   `json:"-"`
	Name          string                   `json:"name" env:"SERVICE_NAME"`
	Port          string                   `json:"port" env:"PORT"`
	Debug         bool                     `json:"debug" env:"DEBUG"`
	BatchSize     int                      `json:"batchSize" env:"BATCH_SIZE"`
	RemoteTimeout int                      `json:"remoteTimeoutSeconds" env:"REMOTE_TIMEOUT_SECONDS"`
	Mongo         MongoSettings            `json:"mongo"`
	EventLog      EventLogSettings         `json:"eventLog"`
	AMQP          amqp.Configuration       `json:"amqp"`
	Convergence   ddd.ConvergenceJobConfig `json:"convergence"`
}

// NewSettings loads the settings of profile and fills in defaults.
func NewSettings(profile string) (*Settings, error) {
	settings, err := config.Properties[Settings](strings.ToLower(profile))
	if err != nil {
		return nil, err
	}
	settings.Profile = profile
	return settings.withDefaults(), nil
}

// DefaultSettings runs everything in memory.
func DefaultSettings() *Settings {
	return (&Settings{}).withDefaults()
}

// SettingsFromEnv reads the settings from environment variables only.
func SettingsFromEnv() (*Settings, error) {
	settings := &Settings{}
	if err := env.Parse(settings); err != nil {
		return nil, err
	}
	return settings.withDefaults(), nil
}

func (s *Settings) withDefaults() *Settings {
	if s.Name == "" {
		s.Name = "projector"
	}
	if s.Port == "" {
		s.Port = "8080"
	}
	if s.BatchSize <= 0 {
		s.BatchSize = ddd.DefaultBatchSize
	}
	if s.RemoteTimeout <= 0 {
		s.RemoteTimeout = 30
	}
	if s.Mongo.Database == "" {
		s.Mongo.Database = s.Name
	}
	if s.EventLog.Driver == "" {
		s.EventLog.Driver = MemoryDriver
		if s.Mongo.URI != "" {
			s.EventLog.Driver = MongoDriver
		}
	}
	if s.EventLog.Collection == "" {
		s.EventLog.Collection = "events"
	}
	if s.EventLog.Path == "" {
		s.EventLog.Path = s.Name + ".db"
	}
	defaults := ddd.DefaultConvergenceJobConfig()
	if s.Convergence.Interval <= 0 {
		s.Convergence.Interval = defaults.Interval
	}
	if s.Convergence.MaxIterations <= 0 {
		s.Convergence.MaxIterations = defaults.MaxIterations
	}
	return s
}

func (s *Settings) remoteTimeout() time.Duration {
	return time.Duration(s.RemoteTimeout) * time.Second
}

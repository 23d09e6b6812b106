package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	AdminPort      int    `mapstructure:"admin_port"`
	EnableGzip     bool   `mapstructure:"enable_gzip"`
	StatusResponse string `mapstructure:"status_response"`
	// DefaultTimeout is the partner timeout used when a profile does not set timeout_ms.
	DefaultTimeout uint64 `mapstructure:"default_timeout_ms"`
	// Debug adds the full request and the parcels to partner request events.
	Debug          bool               `mapstructure:"debug"`
	Client         HTTPClient         `mapstructure:"http_client"`
	Partners       map[string]Partner `mapstructure:"partners"`
	Analytics      Analytics          `mapstructure:"analytics"`
	Metrics        Metrics            `mapstructure:"metrics"`
	StoredProfiles StoredProfiles     `mapstructure:"stored_profiles"`
	RateLimit      RateLimit          `mapstructure:"rate_limit"`
	// RequestTimeoutHeaders name the headers a fronting queue sets on retrieval calls.
	RequestTimeoutHeaders RequestTimeoutHeaders `mapstructure:"request_timeout_headers"`
	AccessLog             AccessLog             `mapstructure:"access_log"`
}

// AccessLog writes one structured line per served request. Level is a logrus level name.
type AccessLog struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

type RequestTimeoutHeaders struct {
	RequestTimeInQueue    string `mapstructure:"request_time_in_queue"`
	RequestTimeoutInQueue string `mapstructure:"request_timeout_in_queue"`
}

type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
}

type Analytics struct {
	File  FileLogs      `mapstructure:"file"`
	HTTP  HTTPAnalytics `mapstructure:"http"`
	Redis RedisEvents   `mapstructure:"redis"`
}

// FileLogs configures the file analytics module. The module is off when Filename is empty.
type FileLogs struct {
	Filename string `mapstructure:"filename"`
}

// HTTPAnalytics ships gzipped batches of events to an intake endpoint.
type HTTPAnalytics struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	// Scope is sent along with every batch so the intake can tell wrappers apart.
	Scope  string      `mapstructure:"scope"`
	Buffer EventBuffer `mapstructure:"buffers"`
	// SampleRate is the share of events shipped, from 0 to 1.
	SampleRate float64 `mapstructure:"sample_rate"`
	// Filter is an optional boolean expression over the event topic and payload.
	Filter string `mapstructure:"filter"`
}

type EventBuffer struct {
	BufferSize string `mapstructure:"size"`
	EventCount int    `mapstructure:"count"`
	Timeout    string `mapstructure:"timeout"`
}

// RedisEvents publishes every event on a redis channel.
type RedisEvents struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
	Disabled   DisabledMetrics   `mapstructure:"disabled_metrics"`
}

type InfluxMetrics struct {
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// MeasurementInterval is the interval in seconds between two exports.
	MeasurementInterval int `mapstructure:"measurement_interval"`
}

type PrometheusMetrics struct {
	Port             int    `mapstructure:"port"`
	Namespace        string `mapstructure:"namespace"`
	Subsystem        string `mapstructure:"subsystem"`
	TimeoutMillisRaw int    `mapstructure:"timeout_ms"`
}

func (cfg PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMillisRaw) * time.Millisecond
}

type DisabledMetrics struct {
	// PartnerConnectionMetrics turns off the httptrace hooks on partner calls.
	PartnerConnectionMetrics bool `mapstructure:"partner_connections_metrics"`
}

// StoredProfiles configures the partner profile overrides kept in postgres.
type StoredProfiles struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	// CacheSize is the in-memory cache size in bytes. Zero disables the cache.
	CacheSize  int `mapstructure:"cache_size_bytes"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
	// RefreshRateSeconds is how often overrides are re-applied to the running partners.
	RefreshRateSeconds int `mapstructure:"refresh_rate_seconds"`
}

type PostgresConfig struct {
	ConnectionInfo PostgresConnection `mapstructure:"connection"`
	// QueryTemplate must select (partner_id, config) rows. It can reference $1 for the partner id list.
	QueryTemplate string `mapstructure:"query"`
}

type PostgresConnection struct {
	Database string `mapstructure:"dbname"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// ConnString returns a lib/pq connection string for these settings.
func (cfg *PostgresConnection) ConnString() string {
	buffer := bytes.NewBuffer(nil)

	if cfg.Host != "" {
		buffer.WriteString("host=")
		buffer.WriteString(cfg.Host)
		buffer.WriteString(" ")
	}

	if cfg.Port > 0 {
		buffer.WriteString("port=")
		buffer.WriteString(strconv.Itoa(cfg.Port))
		buffer.WriteString(" ")
	}

	if cfg.Username != "" {
		buffer.WriteString("user=")
		buffer.WriteString(cfg.Username)
		buffer.WriteString(" ")
	}

	if cfg.Password != "" {
		buffer.WriteString("password=")
		buffer.WriteString(cfg.Password)
		buffer.WriteString(" ")
	}

	if cfg.Database != "" {
		buffer.WriteString("dbname=")
		buffer.WriteString(cfg.Database)
		buffer.WriteString(" ")
	}

	buffer.WriteString("sslmode=disable")
	return buffer.String()
}

// RateLimit throttles the retrieval endpoint per client address.
type RateLimit struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxRequestsPerSecond is the token bucket fill rate per client.
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second"`
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	for name, partner := range c.Partners {
		if partner.Adapter == "" {
			partner.Adapter = name
		}
		partner.normalize()
		c.Partners[name] = partner
	}
	glog.Info("Logging the resolved configuration:")
	logGeneral(&c)

	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateError("validation errors", errs)
	}
	return &c, nil
}

func (cfg *Configuration) validate() []error {
	var errs []error
	for name, partner := range cfg.Partners {
		errs = partner.validate(name, errs)
	}
	if cfg.Analytics.HTTP.Enabled && cfg.Analytics.HTTP.Endpoint == "" {
		errs = append(errs, fmt.Errorf("analytics.http.endpoint must be set when analytics.http.enabled is true"))
	}
	if cfg.AccessLog.Enabled {
		if _, err := logrus.ParseLevel(cfg.AccessLog.Level); err != nil {
			errs = append(errs, fmt.Errorf("access_log.level: %v", err))
		}
	}
	if cfg.Analytics.Redis.Enabled && cfg.Analytics.Redis.Channel == "" {
		errs = append(errs, fmt.Errorf("analytics.redis.channel must be set when analytics.redis.enabled is true"))
	}
	return errs
}

// PartnerTimeout returns the time budget for one request to the partner.
func (cfg *Configuration) PartnerTimeout(partner Partner) time.Duration {
	if partner.TimeoutMS > 0 {
		return time.Duration(partner.TimeoutMS) * time.Millisecond
	}
	return time.Duration(cfg.DefaultTimeout) * time.Millisecond
}

func logGeneral(cfg *Configuration) {
	glog.Infof("config.host: %s", cfg.Host)
	glog.Infof("config.port: %d", cfg.Port)
	glog.Infof("config.admin_port: %d", cfg.AdminPort)
	glog.Infof("config.default_timeout_ms: %d", cfg.DefaultTimeout)
	glog.Infof("config.debug: %t", cfg.Debug)
	for name, partner := range cfg.Partners {
		glog.Infof("config.partners.%s: id=%s targeting_type=%s disabled=%t", name, partner.PartnerID, partner.TargetingType, partner.Disabled)
	}
}

// SetupViper sets the defaults and read locations for the application config.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("default_timeout_ms", 1000)
	v.SetDefault("debug", false)
	v.SetDefault("http_client.max_connections_per_host", 0)
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("analytics.file.filename", "")
	v.SetDefault("analytics.http.enabled", false)
	v.SetDefault("analytics.http.endpoint", "")
	v.SetDefault("analytics.http.scope", "")
	v.SetDefault("analytics.http.buffers.size", "2MB")
	v.SetDefault("analytics.http.buffers.count", 100)
	v.SetDefault("analytics.http.buffers.timeout", "900s")
	v.SetDefault("analytics.http.sample_rate", 1)
	v.SetDefault("analytics.http.filter", "")
	v.SetDefault("analytics.redis.enabled", false)
	v.SetDefault("analytics.redis.addr", "localhost:6379")
	v.SetDefault("analytics.redis.password", "")
	v.SetDefault("analytics.redis.db", 0)
	v.SetDefault("analytics.redis.channel", "headertag-events")
	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.measurement_interval", 10)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)
	v.SetDefault("metrics.disabled_metrics.partner_connections_metrics", false)
	v.SetDefault("stored_profiles.postgres.connection.dbname", "")
	v.SetDefault("stored_profiles.postgres.connection.host", "")
	v.SetDefault("stored_profiles.postgres.connection.port", 0)
	v.SetDefault("stored_profiles.postgres.connection.user", "")
	v.SetDefault("stored_profiles.postgres.connection.password", "")
	v.SetDefault("stored_profiles.postgres.query", "SELECT partner_id, config FROM partner_overrides WHERE partner_id = ANY($1)")
	v.SetDefault("stored_profiles.cache_size_bytes", 0)
	v.SetDefault("stored_profiles.ttl_seconds", 0)
	v.SetDefault("stored_profiles.refresh_rate_seconds", 0)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_requests_per_second", 100)
	v.SetDefault("request_timeout_headers.request_time_in_queue", "")
	v.SetDefault("request_timeout_headers.request_timeout_in_queue", "")
	v.SetDefault("access_log.enabled", false)
	v.SetDefault("access_log.level", "info")

	// Set environment variable support:
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("PBH")
	v.AutomaticEnv()
	v.ReadInConfig()
}

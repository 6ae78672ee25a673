package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "pushback.cfg.json"

// TruckConfig holds vehicle constants.
type TruckConfig struct {
	ID        string  `json:"id" mapstructure:"id"`
	Wheelbase float64 `json:"wheelbase" mapstructure:"wheelbase"`
	MaxSteer  float64 `json:"maxSteer" mapstructure:"maxSteer"`
	Accel     float64 `json:"accel" mapstructure:"accel"`
	SteerRate float64 `json:"steerRate" mapstructure:"steerRate"`
	MaxAngVel float64 `json:"maxAngVel" mapstructure:"maxAngVel"`
	Height    float64 `json:"height" mapstructure:"height"`
	Asset     string  `json:"asset" mapstructure:"asset"`
}

// DrivingConfig holds planner and path-follower tuning.
type DrivingConfig struct {
	TurnRadiusFactor float64 `json:"turnRadiusFactor" mapstructure:"turnRadiusFactor"`
	MaxPathLength    float64 `json:"maxPathLength" mapstructure:"maxPathLength"`
	MaxSpeed         float64 `json:"maxSpeed" mapstructure:"maxSpeed"`
	MinSpeed         float64 `json:"minSpeed" mapstructure:"minSpeed"`
	Decel            float64 `json:"decel" mapstructure:"decel"`
	Tolerance        float64 `json:"tolerance" mapstructure:"tolerance"`
	HeadingGain      float64 `json:"headingGain" mapstructure:"headingGain"`
	DampingGain      float64 `json:"dampingGain" mapstructure:"dampingGain"`
	CrossTrackGain   float64 `json:"crossTrackGain" mapstructure:"crossTrackGain"`
}

// SimConfig holds tick loop settings.
type SimConfig struct {
	TickInterval time.Duration
	RecordEvery  int
	MaxSteps     int
	Draw         bool
	AssetDir     string
}

// TerrainConfig selects and parameterizes the terrain probe.
type TerrainConfig struct {
	Type      string  `json:"type" mapstructure:"type"` // flat or plane
	Elevation float64 `json:"elevation" mapstructure:"elevation"`
	GradX     float64 `json:"gradX" mapstructure:"gradX"`
	GradY     float64 `json:"gradY" mapstructure:"gradY"`
	Extent    float64 `json:"extent" mapstructure:"extent"` // half-width of the probed square, 0 = unbounded
}

// GeoConfig anchors the local ground plane to WGS84.
type GeoConfig struct {
	OriginLat float64 `json:"originLat" mapstructure:"originLat"`
	OriginLon float64 `json:"originLon" mapstructure:"originLon"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// PostgresConfig holds connection settings for the postgres backend.
type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// WebsocketConfig holds live-stream settings.
type WebsocketConfig struct {
	URL    string
	Secret string
}

// InfluxConfig holds telemetry settings.
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	Bucket   string
}

// StorageConfig selects the recording backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	Websocket WebsocketConfig
	Influx    InfluxConfig
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GraylogConfig holds GELF log sink settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// APIConfig holds recordings server settings.
type APIConfig struct {
	ServerURL string
	APIKey    string
	Upload    bool
}

// MonitorConfig holds status file settings.
type MonitorConfig struct {
	StatusFile string
	Interval   time.Duration
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers default values. Load calls it; callers that run
// without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("dataDir", "./data")

	viper.SetDefault("truck.id", "truck-1")
	viper.SetDefault("truck.wheelbase", 5.0)
	viper.SetDefault("truck.maxSteer", 60.0)
	viper.SetDefault("truck.accel", 0.5)
	viper.SetDefault("truck.steerRate", 40.0)
	viper.SetDefault("truck.maxAngVel", 20.0)
	viper.SetDefault("truck.height", 0.0)
	viper.SetDefault("truck.asset", "objects/White.obj")

	viper.SetDefault("driving.turnRadiusFactor", 1.5)
	viper.SetDefault("driving.maxPathLength", 5000.0)
	viper.SetDefault("driving.maxSpeed", 2.0)
	viper.SetDefault("driving.minSpeed", 0.3)
	viper.SetDefault("driving.decel", 0.4)
	viper.SetDefault("driving.tolerance", 0.25)
	viper.SetDefault("driving.headingGain", 1.0)
	viper.SetDefault("driving.dampingGain", 0.1)
	viper.SetDefault("driving.crossTrackGain", 8.0)

	viper.SetDefault("sim.tickInterval", "50ms")
	viper.SetDefault("sim.recordEvery", 1)
	viper.SetDefault("sim.maxSteps", 200000)
	viper.SetDefault("sim.draw", true)
	viper.SetDefault("sim.assetDir", ".")

	viper.SetDefault("terrain.type", "flat")
	viper.SetDefault("terrain.elevation", 0.0)
	viper.SetDefault("terrain.gradX", 0.0)
	viper.SetDefault("terrain.gradY", 0.0)
	viper.SetDefault("terrain.extent", 0.0)

	viper.SetDefault("geo.originLat", 0.0)
	viper.SetDefault("geo.originLon", 0.0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "pushback")

	viper.SetDefault("websocket.url", "ws://localhost:5000/api/stream")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "pushback")
	viper.SetDefault("influx.bucket", "truck_telemetry")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "pushback")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.upload", false)

	viper.SetDefault("monitor.statusFile", "")
	viper.SetDefault("monitor.interval", "1s")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetTruckConfig returns vehicle constants.
func GetTruckConfig() TruckConfig {
	return TruckConfig{
		ID:        viper.GetString("truck.id"),
		Wheelbase: viper.GetFloat64("truck.wheelbase"),
		MaxSteer:  viper.GetFloat64("truck.maxSteer"),
		Accel:     viper.GetFloat64("truck.accel"),
		SteerRate: viper.GetFloat64("truck.steerRate"),
		MaxAngVel: viper.GetFloat64("truck.maxAngVel"),
		Height:    viper.GetFloat64("truck.height"),
		Asset:     viper.GetString("truck.asset"),
	}
}

// GetDrivingConfig returns planner and follower tuning.
func GetDrivingConfig() DrivingConfig {
	return DrivingConfig{
		TurnRadiusFactor: viper.GetFloat64("driving.turnRadiusFactor"),
		MaxPathLength:    viper.GetFloat64("driving.maxPathLength"),
		MaxSpeed:         viper.GetFloat64("driving.maxSpeed"),
		MinSpeed:         viper.GetFloat64("driving.minSpeed"),
		Decel:            viper.GetFloat64("driving.decel"),
		Tolerance:        viper.GetFloat64("driving.tolerance"),
		HeadingGain:      viper.GetFloat64("driving.headingGain"),
		DampingGain:      viper.GetFloat64("driving.dampingGain"),
		CrossTrackGain:   viper.GetFloat64("driving.crossTrackGain"),
	}
}

// GetSimConfig returns tick loop settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickInterval: viper.GetDuration("sim.tickInterval"),
		RecordEvery:  viper.GetInt("sim.recordEvery"),
		MaxSteps:     viper.GetInt("sim.maxSteps"),
		Draw:         viper.GetBool("sim.draw"),
		AssetDir:     viper.GetString("sim.assetDir"),
	}
}

// GetTerrainConfig returns the terrain probe settings.
func GetTerrainConfig() TerrainConfig {
	return TerrainConfig{
		Type:      viper.GetString("terrain.type"),
		Elevation: viper.GetFloat64("terrain.elevation"),
		GradX:     viper.GetFloat64("terrain.gradX"),
		GradY:     viper.GetFloat64("terrain.gradY"),
		Extent:    viper.GetFloat64("terrain.extent"),
	}
}

// GetGeoConfig returns the georeference origin.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		OriginLat: viper.GetFloat64("geo.originLat"),
		OriginLon: viper.GetFloat64("geo.originLon"),
	}
}

// GetStorageConfig returns the recording backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
		Influx: InfluxConfig{
			Enabled:  viper.GetBool("influx.enabled"),
			Protocol: viper.GetString("influx.protocol"),
			Host:     viper.GetString("influx.host"),
			Port:     viper.GetString("influx.port"),
			Token:    viper.GetString("influx.token"),
			Org:      viper.GetString("influx.org"),
			Bucket:   viper.GetString("influx.bucket"),
		},
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetAPIConfig returns recordings server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Upload:    viper.GetBool("api.upload"),
	}
}

// GetMonitorConfig returns status file settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}

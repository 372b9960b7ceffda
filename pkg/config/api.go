package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment    string
	Addr           string
	DatabaseURL    string
	MigrationsDir  string
	MongoURI       string
	MongoDatabase  string
	DockerHost     string
	WorkspaceRoot  string
	DNSAPIBase     string
	DNSAPIToken    string
	DNSZoneID      string
	DNSTarget      string
	DomainSuffix   string
	HostPortMin    int
	HostPortMax    int
	BuildTimeout   time.Duration
	ImageNamespace string
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:    GetString("APP_ENV", "development"),
		Addr:           GetString("API_ADDR", ":8080"),
		DatabaseURL:    GetString("DATABASE_URL", "postgres://smaapi:smaapi@db:5432/smaapi?sslmode=disable"),
		MigrationsDir:  GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		MongoURI:       GetString("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:  GetString("MONGO_DB", "smaapi"),
		DockerHost:     GetString("DOCKER_HOST", ""),
		WorkspaceRoot:  GetString("WORKSPACE_ROOT", "/var/lib/smaapi/workspaces"),
		DNSAPIBase:     GetString("DNS_API_BASE", "https://api.dns.example.com/v1"),
		DNSAPIToken:    GetString("DNS_API_TOKEN", ""),
		DNSZoneID:      GetString("DNS_ZONE_ID", ""),
		DNSTarget:      GetString("DNS_TARGET", "127.0.0.1"),
		DomainSuffix:   GetString("DOMAIN_SUFFIX", "smaapi.dev"),
		HostPortMin:    GetInt("HOST_PORT_MIN", 30000),
		HostPortMax:    GetInt("HOST_PORT_MAX", 31000),
		BuildTimeout:   time.Duration(GetInt("BUILD_TIMEOUT_SECONDS", 300)) * time.Second,
		ImageNamespace: GetString("IMAGE_NAMESPACE", "smaapi"),
	}
}

package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for a database node.
type ServerConfig struct {
	// Network settings
	Endpoint      string
	TimeoutSecond int64
	MaxClients    int

	// Storage settings
	DataDir string

	// Append-only log settings
	AppendOnly    bool
	AofSyncPolicy string

	// Snapshot settings
	SnapshotEnabled        bool
	SnapshotIntervalSecs   uint64
	SnapshotWriteThreshold uint64

	// Monitoring settings
	MetricsEndpoint    string
	SlowlogThresholdMs int64
	SlowlogMaxLen      int

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Network settings
	addSection("Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Clients", strconv.Itoa(c.MaxClients))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Append-Only Log", fmt.Sprintf("%t", c.AppendOnly))
	if c.AppendOnly {
		addField("AOF Sync Policy", c.AofSyncPolicy)
	}
	addField("Snapshots", fmt.Sprintf("%t", c.SnapshotEnabled))
	if c.SnapshotEnabled {
		addField("Snapshot Interval", fmt.Sprintf("%d sec", c.SnapshotIntervalSecs))
		addField("Snapshot Threshold", fmt.Sprintf("%d writes", c.SnapshotWriteThreshold))
	}

	// Monitoring
	addSection("Monitoring")
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	} else {
		addField("Metrics Endpoint", "disabled")
	}
	addField("Slowlog Threshold", fmt.Sprintf("%d ms", c.SlowlogThresholdMs))
	addField("Slowlog Max Length", strconv.Itoa(c.SlowlogMaxLen))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

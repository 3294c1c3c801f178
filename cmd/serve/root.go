package serve

import (
	"fmt"
	"strings"
	"time"

	cmdUtil "github.com/MasterHesse/Crab-Cage/cmd/util"
	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/MasterHesse/Crab-Cage/lib/monitor"
	"github.com/MasterHesse/Crab-Cage/lib/persistence"
	"github.com/MasterHesse/Crab-Cage/rpc/common"
	"github.com/MasterHesse/Crab-Cage/rpc/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the Crab Cage server",
		Long:    `Start the Crab Cage server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is CRABCAGE_<flag> (e.g. CRABCAGE_MAX_CLIENTS=512)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:6380", cmdUtil.WrapString("The address on which the server will listen"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 300, cmdUtil.WrapString("Idle timeout in seconds after which a client connection is closed (0 to disable)"))

	key = "max-clients"
	ServeCmd.PersistentFlags().Int(key, 1024, cmdUtil.WrapString("Maximum number of concurrently served client connections"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory used for the append-only log and snapshots"))

	key = "append-only"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to log every write to the append-only log"))

	key = "aof-sync"
	ServeCmd.PersistentFlags().String(key, "everysec", cmdUtil.WrapString("When to fsync the append-only log. One of: always, everysec, no"))

	key = "snapshot"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to write periodic snapshots of the dataset"))

	key = "snapshot-interval"
	ServeCmd.PersistentFlags().Uint64(key, 300, cmdUtil.WrapString("Seconds between automatic snapshots (0 to disable the timer)"))

	key = "snapshot-threshold"
	ServeCmd.PersistentFlags().Uint64(key, 10000, cmdUtil.WrapString("Number of logged writes after which a snapshot is triggered (0 to disable)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional address for the Prometheus metrics HTTP endpoint (e.g. 0.0.0.0:9121). Empty disables metrics"))

	key = "slowlog-threshold"
	ServeCmd.PersistentFlags().Int64(key, 10, cmdUtil.WrapString("Commands slower than this many milliseconds are recorded in the slow log"))

	key = "slowlog-max-len"
	ServeCmd.PersistentFlags().Int(key, 128, cmdUtil.WrapString("Maximum number of entries kept in the slow log"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MaxClients = viper.GetInt("max-clients")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.AppendOnly = viper.GetBool("append-only")
	serveCmdConfig.AofSyncPolicy = viper.GetString("aof-sync")
	serveCmdConfig.SnapshotEnabled = viper.GetBool("snapshot")
	serveCmdConfig.SnapshotIntervalSecs = viper.GetUint64("snapshot-interval")
	serveCmdConfig.SnapshotWriteThreshold = viper.GetUint64("snapshot-threshold")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.SlowlogThresholdMs = viper.GetInt64("slowlog-threshold")
	serveCmdConfig.SlowlogMaxLen = viper.GetInt("slowlog-max-len")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// validate the sync policy before anything touches the disk
	if serveCmdConfig.AppendOnly && !persistence.SyncPolicy(serveCmdConfig.AofSyncPolicy).Valid() {
		return fmt.Errorf("invalid aof-sync policy %s (expected one of: always, everysec, no)", serveCmdConfig.AofSyncPolicy)
	}

	return nil
}

// run boots the engine, restores durable state and serves until a
// shutdown signal arrives
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(*serveCmdConfig)

	eng := engine.New(nil)
	defer eng.Close()

	// Restore durable state and attach the log before serving
	var pers *persistence.Manager
	if serveCmdConfig.AppendOnly || serveCmdConfig.SnapshotEnabled {
		var err error
		pers, err = persistence.Open(persistence.Config{
			Dir:               serveCmdConfig.DataDir,
			AppendOnly:        serveCmdConfig.AppendOnly,
			SyncPolicy:        persistence.SyncPolicy(serveCmdConfig.AofSyncPolicy),
			SnapshotEnabled:   serveCmdConfig.SnapshotEnabled,
			SnapshotInterval:  time.Duration(serveCmdConfig.SnapshotIntervalSecs) * time.Second,
			SnapshotThreshold: serveCmdConfig.SnapshotWriteThreshold,
		}, eng)
		if err != nil {
			return fmt.Errorf("failed to open persistence: %v", err)
		}
		defer pers.Close()
	}

	mon := monitor.New(&monitor.Options{
		SlowlogThreshold: time.Duration(serveCmdConfig.SlowlogThresholdMs) * time.Millisecond,
		SlowlogMaxLen:    serveCmdConfig.SlowlogMaxLen,
	})
	defer mon.Close()

	serv := server.NewServer(*serveCmdConfig, eng, pers, mon)

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	done := make(chan struct{})
	go func() {
		serv.WaitForShutdown()
		close(done)
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
		return nil
	}
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("crabcage")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

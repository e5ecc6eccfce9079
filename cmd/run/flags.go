package run

import (
	"github.com/spf13/cobra"

	"github.com/openfga/recordrelay/cmd/util"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlags(command *cobra.Command, _ []string) {
	flags := command.Flags()

	util.MustBindPFlag("requestTimeout", flags.Lookup("request-timeout"))
	util.MustBindEnv("requestTimeout", "RECORDRELAY_REQUEST_TIMEOUT", "RECORDRELAY_REQUESTTIMEOUT")

	util.MustBindPFlag("grpc.addr", flags.Lookup("grpc-addr"))
	util.MustBindEnv("grpc.addr", "RECORDRELAY_GRPC_ADDR")

	util.MustBindPFlag("datastore.engine", flags.Lookup("datastore-engine"))
	util.MustBindEnv("datastore.engine", "RECORDRELAY_DATASTORE_ENGINE")

	util.MustBindPFlag("datastore.uri", flags.Lookup("datastore-uri"))
	util.MustBindEnv("datastore.uri", "RECORDRELAY_DATASTORE_URI")

	util.MustBindPFlag("datastore.username", flags.Lookup("datastore-username"))
	util.MustBindEnv("datastore.username", "RECORDRELAY_DATASTORE_USERNAME")

	util.MustBindPFlag("datastore.password", flags.Lookup("datastore-password"))
	util.MustBindEnv("datastore.password", "RECORDRELAY_DATASTORE_PASSWORD")

	util.MustBindPFlag("datastore.maxRecordsPerWrite", flags.Lookup("datastore-max-records-per-write"))
	util.MustBindEnv("datastore.maxRecordsPerWrite", "RECORDRELAY_DATASTORE_MAX_RECORDS_PER_WRITE", "RECORDRELAY_DATASTORE_MAXRECORDSPERWRITE")

	util.MustBindPFlag("datastore.maxOpenConns", flags.Lookup("datastore-max-open-conns"))
	util.MustBindEnv("datastore.maxOpenConns", "RECORDRELAY_DATASTORE_MAX_OPEN_CONNS", "RECORDRELAY_DATASTORE_MAXOPENCONNS")

	util.MustBindPFlag("datastore.maxIdleConns", flags.Lookup("datastore-max-idle-conns"))
	util.MustBindEnv("datastore.maxIdleConns", "RECORDRELAY_DATASTORE_MAX_IDLE_CONNS", "RECORDRELAY_DATASTORE_MAXIDLECONNS")

	util.MustBindPFlag("datastore.connMaxIdleTime", flags.Lookup("datastore-conn-max-idle-time"))
	util.MustBindEnv("datastore.connMaxIdleTime", "RECORDRELAY_DATASTORE_CONN_MAX_IDLE_TIME", "RECORDRELAY_DATASTORE_CONNMAXIDLETIME")

	util.MustBindPFlag("datastore.connMaxLifetime", flags.Lookup("datastore-conn-max-lifetime"))
	util.MustBindEnv("datastore.connMaxLifetime", "RECORDRELAY_DATASTORE_CONN_MAX_LIFETIME", "RECORDRELAY_DATASTORE_CONNMAXLIFETIME")

	util.MustBindPFlag("datastore.metrics.enabled", flags.Lookup("datastore-metrics-enabled"))
	util.MustBindEnv("datastore.metrics.enabled", "RECORDRELAY_DATASTORE_METRICS_ENABLED")

	util.MustBindPFlag("relay.capacity", flags.Lookup("relay-capacity"))
	util.MustBindEnv("relay.capacity", "RECORDRELAY_RELAY_CAPACITY")

	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "RECORDRELAY_LOG_FORMAT")

	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "RECORDRELAY_LOG_LEVEL")

	util.MustBindPFlag("log.timestampFormat", flags.Lookup("log-timestamp-format"))
	util.MustBindEnv("log.timestampFormat", "RECORDRELAY_LOG_TIMESTAMP_FORMAT", "RECORDRELAY_LOG_TIMESTAMPFORMAT")

	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "RECORDRELAY_TRACE_ENABLED")

	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "RECORDRELAY_TRACE_OTLP_ENDPOINT")

	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "RECORDRELAY_TRACE_SAMPLE_RATIO", "RECORDRELAY_TRACE_SAMPLERATIO")

	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "RECORDRELAY_TRACE_SERVICE_NAME", "RECORDRELAY_TRACE_SERVICENAME")

	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "RECORDRELAY_METRICS_ENABLED")

	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "RECORDRELAY_METRICS_ADDR")

	util.MustBindPFlag("metrics.enableRPCHistograms", flags.Lookup("metrics-enable-rpc-histograms"))
	util.MustBindEnv("metrics.enableRPCHistograms", "RECORDRELAY_METRICS_ENABLE_RPC_HISTOGRAMS", "RECORDRELAY_METRICS_ENABLERPCHISTOGRAMS")
}

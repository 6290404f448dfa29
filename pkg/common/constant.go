package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyIOTLogDir string = "IOT_LOG_DIR"

	EnvKeyIOTDBType string = "IOT_DB_TYPE"
	EnvKeyIOTDbPath string = "IOT_DB_PATH"

	EnvKeyIOTHttpHostPort string = "IOT_HTTP_HOST_PORT"
	EnvKeyIOTGrpcHostPort string = "IOT_GRPC_HOST_PORT"
	EnvKeyIOTMqttHostPort string = "IOT_MQTT_HOST_PORT"

	EnvKeyIOTDefaultRate  string = "IOT_DEFAULT_RATE"
	EnvKeyIOTDefaultBurst string = "IOT_DEFAULT_BURST"

	EnvKeyIOTCorsAllowOrigins string = "IOT_CORS_ALLOW_ORIGINS"

	EnvKeyIOTFirebaseProjectID   string = "IOT_FIREBASE_PROJECT_ID"
	EnvKeyIOTFirebaseCredentials string = "IOT_FIREBASE_CREDENTIALS"
	EnvKeyIOTDispatcher          string = "IOT_DISPATCHER"
	EnvKeyIOTDirectDispatch      string = "IOT_DIRECT_DISPATCH"
	EnvKeyIOTChangeFeedNotify    string = "IOT_CHANGE_FEED_NOTIFY"

	LoggerNameIOTCore       string = "iot_core"
	LoggerNameRestfulServer string = "restful_server"
	LoggerNameGrpcServer    string = "grpc_server"
	LoggerNameMqttBroker    string = "mqtt_broker"
	LoggerNameNotifier      string = "notifier"
	LoggerNameStore         string = "store"
	LoggerFieldIOTCategory  string = "category"

	LoggerCategoryIOTReading    string = "reading"
	LoggerCategoryIOTAlert      string = "alert"
	LoggerCategoryIOTDevice     string = "device"
	LoggerCategoryIOTDispatch   string = "dispatch"
	LoggerCategoryIOTChangeFeed string = "change_feed"
)

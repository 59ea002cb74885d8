package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                 string // connection string for the database
	NatsURL            string // URL of the NATS server, empty disables publishing
	NatsSubject        string // subject prefix for episode summaries
	WaitForServices    string // duration to wait for other services to be ready
	LogLevel           string // sets the log level (zap log level values)
	SQLLogLevel        string // sets the log level for sql subsystem
	LogFormat          string // text vs json
	LogFilter          string // zapfilter rules applied to the logger names
	MigrationSourceURL string // location of migration files, empty uses the embedded ones
	EnableTelemetry    bool   // enable telemetry
	TelemetryEndpoint  string // endpoint for telemetry, "stdout" writes to stdout
	TrackFile          string // track layout file
	RoundTrack         bool   // round track coordinates to integers
	ModelFile          string // file to save/load the value network
	Debug              bool   // per step debug output
	StoreEpisodes      bool   // persist episode summaries in the database
)

// Run holds the parameters of a train/eval session
type Run struct {
	Episodes      int
	MaxSteps      int
	ReplaceTarget int
	RecordEvery   int
	BatchSize     int
	MemorySize    int
	Hidden        int
	LearningRate  float64
	Gamma         float64
	Epsilon       float64
	EpsilonMin    float64
	EpsilonDecay  float64
	StepPenalty   float64
	Seed          uint64
	Watch         bool // reload the model file on change
}

package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/pgx-contrib/pgxtrace"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/agent"
	"github.com/mpapenbr/selfdriving-car-go/pkg/brain"
	cmdutil "github.com/mpapenbr/selfdriving-car-go/pkg/cmd/util"
	"github.com/mpapenbr/selfdriving-car-go/pkg/config"
	"github.com/mpapenbr/selfdriving-car-go/pkg/db/postgres"
	"github.com/mpapenbr/selfdriving-car-go/pkg/model"
	runrepos "github.com/mpapenbr/selfdriving-car-go/pkg/repository/run"
	"github.com/mpapenbr/selfdriving-car-go/pkg/simulation"
	"github.com/mpapenbr/selfdriving-car-go/pkg/sink"
	"github.com/mpapenbr/selfdriving-car-go/pkg/track"
	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
	"github.com/mpapenbr/selfdriving-car-go/pkg/utils/watch"
	"github.com/mpapenbr/selfdriving-car-go/pkg/vehicle"
)

var runConfig config.Run // holds processed config values

func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "trains the driving agent on a track",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startSession(true)
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func NewEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "drives a track with a trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startSession(false)
		},
	}
	addSessionFlags(cmd)
	cmd.Flags().BoolVar(&runConfig.Watch,
		"watch",
		false,
		"reload the model when the model file changes")
	return cmd
}

//nolint:funlen // flag definitions
func addSessionFlags(cmd *cobra.Command) {
	ac := agent.DefaultConfig()
	bc := brain.DefaultConfig()
	tc := training.DefaultConfig()
	sc := simulation.DefaultConfig()

	cmd.Flags().StringVarP(&config.TrackFile,
		"track", "t",
		"",
		"track layout file (text or yaml)")
	cmd.Flags().BoolVar(&config.RoundTrack,
		"round-track",
		true,
		"round track coordinates to integers")
	cmd.Flags().StringVarP(&config.ModelFile,
		"model", "m",
		tc.ModelFile,
		"file to save/load the model")
	cmd.Flags().IntVar(&runConfig.Episodes,
		"episodes",
		0,
		"number of episodes to play (0 = until interrupted)")
	cmd.Flags().IntVar(&runConfig.MaxSteps,
		"max-steps",
		tc.MaxSteps,
		"maximum steps per episode")
	cmd.Flags().IntVar(&runConfig.ReplaceTarget,
		"replace-target",
		tc.ReplaceTarget,
		"sync the target network every n episodes")
	cmd.Flags().IntVar(&runConfig.RecordEvery,
		"record-every",
		tc.RecordEvery,
		"check for a new record every n episodes")
	cmd.Flags().IntVar(&runConfig.BatchSize,
		"batch-size",
		ac.BatchSize,
		"replay batch size")
	cmd.Flags().IntVar(&runConfig.MemorySize,
		"memory-size",
		ac.MemorySize,
		"replay memory capacity")
	cmd.Flags().IntVar(&runConfig.Hidden,
		"hidden",
		bc.Hidden,
		"units of the hidden layer")
	cmd.Flags().Float64Var(&runConfig.LearningRate,
		"learning-rate",
		bc.LearningRate,
		"Adam learning rate")
	cmd.Flags().Float64Var(&runConfig.Gamma,
		"gamma",
		ac.Gamma,
		"discount factor")
	cmd.Flags().Float64Var(&runConfig.Epsilon,
		"epsilon",
		ac.Epsilon,
		"initial exploration rate for training")
	cmd.Flags().Float64Var(&runConfig.EpsilonMin,
		"epsilon-min",
		ac.EpsilonMin,
		"exploration rate floor")
	cmd.Flags().Float64Var(&runConfig.EpsilonDecay,
		"epsilon-decay",
		ac.EpsilonDecay,
		"exploration decay per episode")
	cmd.Flags().Float64Var(&runConfig.StepPenalty,
		"step-penalty",
		sc.StepPenalty,
		"penalty subtracted from the reward of each step")
	cmd.Flags().Uint64Var(&runConfig.Seed,
		"seed",
		ac.Seed,
		"seed for weight init and exploration")
	cmd.Flags().BoolVar(&config.Debug,
		"debug",
		false,
		"log every step (toggle at runtime with SIGUSR2)")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"publish episode summaries to this NATS server")
	cmd.Flags().StringVar(&config.NatsSubject,
		"nats-subject",
		"sdc.episode",
		"subject prefix for episode summaries")
	cmd.Flags().BoolVar(&config.StoreEpisodes,
		"store-episodes",
		false,
		"store episode summaries in the database")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (stdout writes to stdout)")
}

//nolint:funlen // by design
func startSession(trainMode bool) error {
	logger, sqlLogger, err := cmdutil.SetupLogger()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.AddToContext(ctx, logger)

	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, err := config.SetupTelemetry(ctx); err == nil {
			defer telemetry.Shutdown()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	s, err := newSession(ctx, trainMode, sqlLogger)
	if err != nil {
		return err
	}
	defer s.close()

	stopSignals := handleSignals(s.trainer)
	defer stopSignals()

	if !trainMode && runConfig.Watch && config.ModelFile != "" {
		if err := watch.File(ctx, config.ModelFile, s.trainer.RequestReload); err != nil {
			log.Warn("Could not watch model file", log.ErrorField(err))
		}
	}
	return s.trainer.Run(ctx)
}

type session struct {
	geo     *track.Geometry
	sim     *simulation.Simulation
	agent   *agent.Agent
	trainer *training.Trainer
	runID   uuid.UUID
	closers []func()
}

// newSession wires track, simulation, agent and sinks. Without a model file
// training starts from scratch, evaluation requires one.
//
//nolint:funlen,cyclop // wiring
func newSession(ctx context.Context, trainMode bool, sqlLogger *log.Logger) (
	_ *session, err error,
) {
	s := &session{}
	defer func() {
		if err != nil {
			s.close()
		}
	}()
	if config.TrackFile == "" {
		return nil, errors.New("no track file given")
	}
	if runConfig.MaxSteps <= 0 {
		return nil, fmt.Errorf("max-steps must be positive, got %d", runConfig.MaxSteps)
	}
	if s.geo, err = track.LoadFile(config.TrackFile,
		track.WithRounding(config.RoundTrack)); err != nil {
		return nil, err
	}
	simCfg := simulation.DefaultConfig()
	simCfg.StepPenalty = runConfig.StepPenalty
	if s.sim, err = simulation.New(s.geo,
		simulation.WithConfig(simCfg),
		simulation.WithLogger(log.Default().Named("sim"))); err != nil {
		return nil, err
	}

	bc := brain.DefaultConfig()
	bc.Hidden = runConfig.Hidden
	bc.LearningRate = runConfig.LearningRate
	bc.Seed = runConfig.Seed
	eval := brain.New(s.sim.StateDim(), vehicle.NumActions, brain.WithConfig(bc))
	target := brain.New(s.sim.StateDim(), vehicle.NumActions, brain.WithConfig(bc))

	ac := agent.Config{
		StateDim:     s.sim.StateDim(),
		NumActions:   vehicle.NumActions,
		Gamma:        runConfig.Gamma,
		Epsilon:      runConfig.Epsilon,
		EpsilonMin:   runConfig.EpsilonMin,
		EpsilonDecay: runConfig.EpsilonDecay,
		BatchSize:    runConfig.BatchSize,
		MemorySize:   runConfig.MemorySize,
		Seed:         runConfig.Seed,
	}
	if !trainMode {
		// exploration used when switching to training
		ac.Epsilon = ac.EpsilonMin
	}
	if s.agent, err = agent.New(eval, target, agent.WithConfig(ac)); err != nil {
		return nil, err
	}

	if s.runID, err = uuid.NewV7(); err != nil {
		return nil, err
	}
	sinks, err := s.setupSinks(ctx, trainMode, sqlLogger)
	if err != nil {
		return nil, err
	}

	tc := training.Config{
		Episodes:      runConfig.Episodes,
		MaxSteps:      runConfig.MaxSteps,
		ReplaceTarget: runConfig.ReplaceTarget,
		RecordEvery:   runConfig.RecordEvery,
		ModelFile:     config.ModelFile,
		Training:      trainMode,
		LongMemory:    true,
	}
	s.trainer = training.New(s.sim, s.agent,
		training.WithConfig(tc),
		training.WithSinks(sinks...),
		training.WithRunID(s.runID.String()),
		training.WithTrackName(s.geo.Name()),
		training.WithDebug(config.Debug))

	// load after the trainer has set the mode specific epsilon
	if config.ModelFile != "" {
		err = s.agent.LoadModel(config.ModelFile)
		switch {
		case err == nil:
		case trainMode && errors.Is(err, os.ErrNotExist):
			log.Info("No model found, starting from scratch",
				log.String("file", config.ModelFile))
			err = nil
		default:
			return nil, err
		}
	} else if !trainMode {
		return nil, errors.New("evaluation requires a model file")
	}
	return s, nil
}

func (s *session) setupSinks(ctx context.Context, trainMode bool, sqlLogger *log.Logger) (
	[]training.Sink, error,
) {
	ret := []training.Sink{sink.NewLog(log.Default().Named("episode"))}
	if config.EnableTelemetry {
		m, err := sink.NewMetrics()
		if err != nil {
			return nil, err
		}
		ret = append(ret, m)
	}

	var remote []training.Sink
	if config.NatsURL != "" {
		if err := cmdutil.WaitForNats(ctx); err != nil {
			return nil, fmt.Errorf("nats not ready: %w", err)
		}
		conn, err := nats.Connect(config.NatsURL, nats.Name("sdc"))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := conn.Drain(); err != nil {
				log.Warn("draining nats connection", log.ErrorField(err))
			}
		})
		remote = append(remote, sink.NewNats(conn, config.NatsSubject))
	}
	if config.StoreEpisodes {
		pool, err := s.setupStore(ctx, trainMode, sqlLogger)
		if err != nil {
			return nil, err
		}
		remote = append(remote, sink.NewStore(pool, s.runID))
	}
	if len(remote) > 0 {
		// remote sinks keep working on pending summaries after ctx is cancelled
		async := sink.NewAsync(context.WithoutCancel(ctx), remote)
		// closers run in reverse order, the async sink is flushed first
		s.closers = append(s.closers, async.Close)
		ret = append(ret, async)
	}
	return ret, nil
}

func (s *session) setupStore(ctx context.Context, trainMode bool, sqlLogger *log.Logger) (
	*pgxpool.Pool, error,
) {
	if err := cmdutil.WaitForDB(ctx); err != nil {
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	pgTracer := pgxtrace.CompositeQueryTracer{
		postgres.NewMyTracer(sqlLogger, log.DebugLevel),
	}
	if config.EnableTelemetry {
		pgTracer = append(pgTracer, postgres.NewOtlpTracer())
	}
	pool, err := postgres.InitWithURL(ctx, config.DB, postgres.WithTracer(pgTracer))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, pool.Close)
	run := &model.DbRun{
		ID:    s.runID,
		Track: s.geo.Name(),
		Config: model.RunConfig{
			Episodes:      runConfig.Episodes,
			MaxSteps:      runConfig.MaxSteps,
			ReplaceTarget: runConfig.ReplaceTarget,
			RecordEvery:   runConfig.RecordEvery,
			BatchSize:     runConfig.BatchSize,
			MemorySize:    runConfig.MemorySize,
			Hidden:        runConfig.Hidden,
			LearningRate:  runConfig.LearningRate,
			Gamma:         runConfig.Gamma,
			Epsilon:       runConfig.Epsilon,
			EpsilonMin:    runConfig.EpsilonMin,
			EpsilonDecay:  runConfig.EpsilonDecay,
			StepPenalty:   runConfig.StepPenalty,
			Seed:          runConfig.Seed,
			Training:      trainMode,
			ModelFile:     config.ModelFile,
		},
	}
	if err := runrepos.CreateRun(ctx, pool, run); err != nil {
		return nil, err
	}
	log.Info("Storing episodes", log.String("run", s.runID.String()))
	return pool, nil
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Package controller runs the joint control core: the robot mode machine, the
// control laws behind each mode, and the inbound/outbound loops that feed
// them state and publish their commands.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/open-legged/controller/domain/diagnostic"
	"github.com/open-legged/controller/pkg/config"
	"github.com/open-legged/controller/pkg/integrator"
	"github.com/open-legged/controller/pkg/kinematics"
	customlog "github.com/open-legged/controller/pkg/log"
	"github.com/open-legged/controller/pkg/processing"
	"github.com/open-legged/controller/pkg/wire"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/mat"
)

// timeSourcePollInterval is how often Initialize re-checks the clock
const timeSourcePollInterval = 10 * time.Millisecond

// Dependencies are the collaborators a Controller is built from
type Dependencies struct {
	Model       kinematics.Model
	Director    *processing.MessageDirector
	Publisher   CommandPublisher
	Diagnostics *diagnostic.DiagnosticService
	Clock       clock.Clock
	Logger      customlog.Logger
}

type modeRequest struct {
	mode  RobotMode
	reply chan modeResult
}

type modeResult struct {
	ctx ModeContext
	err error
}

// Controller owns the mode machine and the two loops. State updates and mode
// requests are applied on the inbound worker; commands are computed and
// published on the outbound ticker. Everything the outbound loop reads
// besides the state store is guarded by mu.
type Controller struct {
	cfg       *config.Config
	channels  config.Channels
	logger    customlog.Logger
	clock     clock.Clock
	director  *processing.MessageDirector
	publisher CommandPublisher
	diag      *diagnostic.DiagnosticService
	state     *StateStore

	mu      sync.RWMutex
	env     *modeEnv
	active  *plan
	modeCtx ModeContext
	lastCmd *CommandPair

	ready    atomic.Bool
	inFlight atomic.Bool
	closing  atomic.Bool

	lifecycle sync.Mutex
	started   bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New builds a controller. Nothing runs until Start.
func New(cfg *config.Config, deps Dependencies) (*Controller, error) {
	if deps.Model == nil || deps.Director == nil || deps.Publisher == nil {
		return nil, fmt.Errorf("controller: model, director and publisher are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		logger, err := customlog.NewLogrusLogger("info", "")
		if err != nil {
			return nil, err
		}
		deps.Logger = logger
	}
	if deps.Diagnostics == nil {
		deps.Diagnostics = diagnostic.NewDiagnosticService(deps.Clock)
	}
	if len(cfg.Controller.NeutralJointConfig) != kinematics.NumJoints {
		return nil, fmt.Errorf("controller: neutral joint config has %d entries, want %d",
			len(cfg.Controller.NeutralJointConfig), kinematics.NumJoints)
	}

	policy := kinematics.InversionPolicy{
		Damping:            cfg.PseudoInverse.Damping,
		ConditionThreshold: cfg.PseudoInverse.ConditionThreshold,
	}
	c := &Controller{
		cfg:       cfg,
		channels:  cfg.Channels(),
		logger:    deps.Logger.WithField("component", "controller"),
		clock:     deps.Clock,
		director:  deps.Director,
		publisher: deps.Publisher,
		diag:      deps.Diagnostics,
		state:     NewStateStore(deps.Clock),
		env: &modeEnv{
			feet:            NewFeetController(deps.Model, policy, cfg.Controller.KPosP),
			integrator:      integrator.New(kinematics.NumJoints, cfg.ControlPeriod()),
			neutral:         mat.NewVecDense(kinematics.NumJoints, append([]float64(nil), cfg.Controller.NeutralJointConfig...)),
			standingHeight:  cfg.Controller.StandingHeight,
			standupDuration: cfg.Controller.StandupDurationS,
			initialDuration: cfg.Controller.InitialConfigDurationS,
		},
	}
	c.env.integrator.Reset()

	c.director.SetProcessor(c.processInbound)
	c.director.SetDiscardHandler(c.discardInbound)
	return c, nil
}

// State exposes the robot state store
func (c *Controller) State() *StateStore {
	return c.state
}

// SetMode switches the robot mode. It runs synchronously on the caller and
// holds the controller lock for the whole reconfiguration, so a tick sees
// either the old mode or the new one. Unsupported modes fail before the
// current mode is disturbed, as does any request before the first gen_coord
// update or after Stop has begun.
func (c *Controller) SetMode(target RobotMode) (ModeContext, error) {
	b, err := behaviorFor(target)
	if err != nil {
		return ModeContext{}, err
	}
	// Trajectories start from the measured joints, so a mode needs real state
	if !c.state.hasReceived() {
		return ModeContext{}, fmt.Errorf("%w: no state received on %s", ErrNotStarted, c.channels.GenCoord)
	}
	snap := c.state.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() {
		return ModeContext{}, ErrShuttingDown
	}

	wasReady := c.ready.Load()
	c.ready.Store(false)

	hold, err := b.enter(c.env, snap)
	if err != nil {
		c.ready.Store(wasReady)
		return ModeContext{}, fmt.Errorf("entering %s: %w", target, err)
	}

	c.active = &plan{behavior: b, mode: target, hold: hold}
	c.modeCtx = ModeContext{
		Mode:         target,
		Control:      b.control,
		Start:        c.clock.Now(),
		EndTime:      hold.EndTime,
		TransitionID: uuid.NewString(),
	}
	c.ready.Store(true)

	c.logger.WithField("transition_id", c.modeCtx.TransitionID).
		Infof("Robot mode set to %s (%s, trajectory %.2fs)", target, b.control, hold.EndTime)
	c.diag.RecordTransition(target.String())
	return c.modeCtx, nil
}

// RequestMode queues a mode change for the inbound loop and waits for the
// result. While one request is in flight further requests fail with ErrBusy.
func (c *Controller) RequestMode(ctx context.Context, mode RobotMode) (ModeContext, error) {
	if _, err := ControlModeFor(mode); err != nil {
		return ModeContext{}, err
	}
	if c.closing.Load() {
		return ModeContext{}, ErrShuttingDown
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return ModeContext{}, ErrBusy
	}

	req := &modeRequest{mode: mode, reply: make(chan modeResult, 1)}
	err := c.director.RouteMessage(&processing.Message{Topic: c.channels.Standup, Payload: req})
	if err != nil {
		c.inFlight.Store(false)
		switch {
		case errors.Is(err, processing.ErrPoolStopped) && c.closing.Load():
			return ModeContext{}, ErrShuttingDown
		case errors.Is(err, processing.ErrPoolStopped):
			return ModeContext{}, ErrNotStarted
		case errors.Is(err, processing.ErrQueueFull):
			return ModeContext{}, ErrBusy
		}
		return ModeContext{}, err
	}

	select {
	case res := <-req.reply:
		return res.ctx, res.err
	case <-ctx.Done():
		// The transition still completes on the inbound loop
		return ModeContext{}, ctx.Err()
	}
}

// processInbound runs on the inbound worker
func (c *Controller) processInbound(msg *processing.Message) error {
	switch msg.Topic {
	case c.channels.GenCoord:
		return c.applyState(msg, kinematics.GenCoordDim, c.state.SetGenCoord)
	case c.channels.GenVel:
		return c.applyState(msg, kinematics.GenVelDim, c.state.SetGenVel)
	case c.channels.Standup:
		req, ok := msg.Payload.(*modeRequest)
		if !ok {
			return fmt.Errorf("unexpected payload %T on %s", msg.Payload, msg.Topic)
		}
		res := modeResult{}
		res.ctx, res.err = c.SetMode(req.mode)
		c.inFlight.Store(false)
		req.reply <- res
		return res.err
	default:
		return fmt.Errorf("no handler for topic '%s'", msg.Topic)
	}
}

func (c *Controller) applyState(msg *processing.Message, n int, set func([]float64) error) error {
	arr, err := wire.DecodeFixed(msg.Data, n)
	if err == nil {
		err = set(arr.Data)
	}
	if err != nil {
		c.diag.RecordState(false)
		c.director.TopicRegistry().RecordReject(msg.Topic)
		if !errors.Is(err, ErrMalformedState) {
			err = fmt.Errorf("%w: %v", ErrMalformedState, err)
		}
		return err
	}
	c.diag.RecordState(true)
	return nil
}

// discardInbound answers mode requests dropped at shutdown
func (c *Controller) discardInbound(msg *processing.Message) {
	if req, ok := msg.Payload.(*modeRequest); ok {
		c.inFlight.Store(false)
		req.reply <- modeResult{err: ErrShuttingDown}
	}
}

// tick runs the active control law once and publishes the result. Publishing
// happens under the lock so nothing goes out once Stop has cleared ready.
func (c *Controller) tick() {
	start := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready.Load() || c.active == nil {
		c.diag.RecordSkip()
		return
	}

	elapsed := c.clock.Since(c.modeCtx.Start).Seconds()
	cmd, err := c.active.behavior.step(c.env, c.active, elapsed, c.state.Snapshot())
	if err != nil {
		c.diag.RecordControlError()
		c.logger.Errorf("Control law for %s failed: %v", c.active.mode, err)
		return
	}
	if c.active.damped {
		c.diag.RecordDampedInversion()
	}
	c.lastCmd = &cmd

	published := true
	if err := c.publisher.PublishCommands(cmd); err != nil {
		published = false
		c.diag.RecordPublishError()
		c.logger.Warnf("Failed to publish joint commands: %v", err)
	}
	c.diag.RecordTick(c.clock.Since(start), c.cfg.ControlPeriod(), published)
}

func (c *Controller) outboundLoop(ticker *clock.Ticker, stop <-chan struct{}) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// Start launches the inbound worker and the outbound ticker
func (c *Controller) Start() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.started {
		return
	}
	c.started = true
	c.stop = make(chan struct{})

	c.director.Start()

	ticker := c.clock.Ticker(c.cfg.ControlPeriod())
	c.wg.Add(1)
	go c.outboundLoop(ticker, c.stop)

	c.logger.Infof("Controller loops started at %.0f Hz", c.cfg.Controller.FrequencyHz)
}

// Initialize waits, bounded by the startup timeout, for a valid clock and the
// first gen_coord update, then enters Idle.
func (c *Controller) Initialize(ctx context.Context) error {
	timeout := c.cfg.StartupTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.waitForTime(ctx); err != nil {
		return fmt.Errorf("%w: time source still reports zero after %v", ErrStartupTimeout, timeout)
	}
	c.logger.Infof("Received valid time")

	select {
	case <-c.state.Received():
	case <-ctx.Done():
		return fmt.Errorf("%w: no state on %s after %v", ErrStartupTimeout, c.channels.GenCoord, timeout)
	}
	c.logger.Infof("Received first state")

	if _, err := c.RequestMode(ctx, ModeIdle); err != nil {
		return fmt.Errorf("entering idle: %w", err)
	}
	return nil
}

func (c *Controller) waitForTime(ctx context.Context) error {
	if c.clock.Now().UnixNano() > 0 {
		return nil
	}
	poll := time.NewTicker(timeSourcePollInterval)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			if c.clock.Now().UnixNano() > 0 {
				return nil
			}
		}
	}
}

// Stop clears ready, stops accepting inbound work, discards what is queued,
// joins the inbound worker and then the outbound loop.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if !c.started {
		return
	}
	c.started = false
	c.closing.Store(true)
	c.logger.Infof("Stopping controller")

	c.mu.Lock()
	c.ready.Store(false)
	c.mu.Unlock()

	c.director.Stop()

	close(c.stop)
	c.wg.Wait()

	c.logger.Infof("Controller stopped")
}

// Status is a point-in-time view of the controller
type Status struct {
	Mode              string       `json:"mode"`
	ControlMode       string       `json:"control_mode"`
	Ready             bool         `json:"ready"`
	SecondsInMode     float64      `json:"seconds_in_mode"`
	TrajectoryEndTime float64      `json:"trajectory_end_time"`
	TransitionID      string       `json:"transition_id"`
	StateReceived     bool         `json:"state_received"`
	StateAgeSeconds   float64      `json:"state_age_seconds"`
	LastCommand       *CommandPair `json:"last_command,omitempty"`
}

func (c *Controller) Status() Status {
	snap := c.state.Snapshot()

	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		Ready:         c.ready.Load(),
		StateReceived: snap.Received,
	}
	if snap.Received {
		st.StateAgeSeconds = c.clock.Since(snap.UpdatedAt).Seconds()
	}
	if c.active != nil {
		st.Mode = c.modeCtx.Mode.String()
		st.ControlMode = c.modeCtx.Control.String()
		st.SecondsInMode = c.clock.Since(c.modeCtx.Start).Seconds()
		st.TrajectoryEndTime = c.modeCtx.EndTime
		st.TransitionID = c.modeCtx.TransitionID
	}
	if c.lastCmd != nil {
		cmd := *c.lastCmd
		st.LastCommand = &cmd
	}
	return st
}

package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/metrics"
	"github.com/KevinKickass/EcoShareCore/internal/pairing"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultAttemptTimeout = 5 * time.Second
	DefaultMaxAttempts    = 3

	// commitTimeout bounds the claim and save that follow a successful
	// handshake. They no longer depend on the caller staying connected.
	commitTimeout = 10 * time.Second
)

// DeviceCreator commits the finished device.
type DeviceCreator interface {
	Create(ctx context.Context, in types.DeviceInput) (types.Device, error)
}

// SpotCatalog is the part of the location catalog the workflow touches.
type SpotCatalog interface {
	Spot(ctx context.Context, id string) (types.Spot, error)
	Occupy(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// DraftDefaults supplies values for draft fields the user left empty.
type DraftDefaults interface {
	MaintenanceIntervalDays() int
}

// Notifier receives every state change of a session.
type Notifier interface {
	OnboardingChanged(status Status, previous State)
}

type Dependencies struct {
	Devices  DeviceCreator
	Catalog  SpotCatalog
	Pairer   pairing.Pairer
	Scanner  pairing.Scanner
	Defaults DraftDefaults
	Notifier Notifier
}

type Options struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
}

func (o Options) withDefaults() Options {
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// pending is all transient data of one run through the wizard.
type pending struct {
	draft     *types.DeviceDraft
	spotID    string
	scannedID string
	attempt   *PairingAttempt
	failures  int
}

// Controller drives one onboarding session. A device is committed only after
// basic info, location and pairing succeeded in that order.
type Controller struct {
	id     string
	deps   Dependencies
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	pending    pending
	inFlight   bool
	cancelOp   context.CancelFunc
	generation uint64
	committed  *types.Device
	updatedAt  time.Time
}

func NewController(id string, deps Dependencies, opts Options, logger *zap.Logger) *Controller {
	return &Controller{
		id:        id,
		deps:      deps,
		opts:      opts.withDefaults(),
		logger:    logger.With(zap.String("session", id)),
		state:     StateIdle,
		updatedAt: time.Now(),
	}
}

func (c *Controller) ID() string {
	return c.id
}

// Start opens the basic info step.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return &PreconditionError{Op: "start", State: c.state}
	}

	c.pending = pending{}
	c.committed = nil
	c.transition(StateAwaitingBasicInfo)
	return nil
}

// SubmitBasicInfo validates and stores the draft. Invalid input leaves the
// session untouched.
func (c *Controller) SubmitBasicInfo(ctx context.Context, draft types.DeviceDraft) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingBasicInfo {
		return &PreconditionError{Op: "submit basic info", State: c.state}
	}

	if err := validateDraft(draft); err != nil {
		return err
	}

	c.applyDefaults(&draft)
	c.pending.draft = &draft
	c.transition(StateAwaitingLocation)

	c.logger.Info("Basic info submitted",
		zap.String("name", draft.Name),
		zap.String("type", string(draft.Type)))
	return nil
}

// SelectLocation binds the draft to an available spot. An unknown or
// occupied spot is rejected before the state is looked at.
func (c *Controller) SelectLocation(ctx context.Context, spotID string) error {
	spotID = strings.TrimSpace(spotID)
	if spotID == "" {
		return fmt.Errorf("%w: spot id is required", ErrInvalidSelection)
	}

	spot, err := c.deps.Catalog.Spot(ctx, spotID)
	if err != nil {
		if errors.Is(err, locations.ErrSpotNotFound) {
			return fmt.Errorf("%w: unknown spot %s", ErrInvalidSelection, spotID)
		}
		return fmt.Errorf("failed to look up spot %s: %w", spotID, err)
	}
	if !spot.Available() {
		return fmt.Errorf("%w: spot %s is %s", ErrInvalidSelection, spotID, spot.Status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingLocation {
		return &PreconditionError{Op: "select location", State: c.state}
	}

	c.pending.spotID = spot.ID
	c.pending.failures = 0
	c.pending.attempt = nil
	c.transition(StateAwaitingPairing)

	c.logger.Info("Location selected", zap.String("spot", spot.ID))
	return nil
}

// Scan reads a device identifier from the configured scanner and remembers
// it for the pairing step.
func (c *Controller) Scan(ctx context.Context) (string, error) {
	if c.deps.Scanner == nil {
		return "", fmt.Errorf("no scanner configured")
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return "", ErrBusy
	}
	if c.state != StateAwaitingPairing {
		state := c.state
		c.mu.Unlock()
		return "", &PreconditionError{Op: "scan", State: state}
	}

	scanCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	gen := c.begin(cancel, &PairingAttempt{Phase: PhaseScanning})
	c.mu.Unlock()

	id, err := c.deps.Scanner.Scan(scanCtx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return "", ErrCancelled
	}
	c.end()

	if err != nil {
		c.pending.attempt = &PairingAttempt{Phase: PhaseFailed, Reason: reasonFor(scanCtx, err)}
		c.touch()
		return "", fmt.Errorf("scan failed: %w", err)
	}

	c.pending.scannedID = id
	c.pending.attempt = nil
	c.touch()
	return id, nil
}

// AttemptPairing hands the identifier to the pairer and, on success, claims
// the spot and commits the device. A failure keeps draft and binding for a
// retry until the attempt budget is spent.
func (c *Controller) AttemptPairing(ctx context.Context, deviceID string) (types.Device, error) {
	deviceID = strings.TrimSpace(deviceID)

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return types.Device{}, ErrBusy
	}
	if c.state != StateAwaitingPairing {
		state := c.state
		c.mu.Unlock()
		return types.Device{}, &PreconditionError{Op: "attempt pairing", State: state}
	}
	if deviceID == "" {
		c.mu.Unlock()
		return types.Device{}, ErrEmptyIdentifier
	}
	if err := pairing.ValidateDeviceID(deviceID); err != nil {
		c.mu.Unlock()
		return types.Device{}, &ValidationError{Field: "device_id", Message: err.Error()}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	attempt := c.pending.failures + 1
	gen := c.begin(cancel, &PairingAttempt{DeviceID: deviceID, Phase: PhaseConnecting, Attempt: attempt})
	c.mu.Unlock()

	c.logger.Info("Pairing attempt started",
		zap.String("device_id", deviceID),
		zap.Int("attempt", attempt))

	started := time.Now()
	res, err := c.deps.Pairer.Pair(attemptCtx, deviceID)
	elapsed := time.Since(started)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		metrics.ObservePairing("cancelled", elapsed)
		c.logger.Info("Discarding pairing result of cancelled session",
			zap.String("device_id", deviceID))
		return types.Device{}, ErrCancelled
	}
	c.end()

	if err != nil {
		if ctx.Err() != nil {
			return types.Device{}, c.abort(deviceID, attempt, ctx.Err(), elapsed)
		}
		return types.Device{}, c.fail(deviceID, attempt, reasonFor(attemptCtx, err), err, elapsed)
	}

	metrics.ObservePairing(metrics.ResultSuccess, elapsed)

	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancelCommit()
	return c.commit(commitCtx, res)
}

// Cancel discards all transient state and detaches from an outstanding
// attempt. Cancelling an idle session does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return
	}

	if c.inFlight {
		c.cancelOp()
		c.generation++
		c.end()
	}

	c.pending = pending{}
	c.transition(StateIdle)
	c.logger.Info("Onboarding cancelled")
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) fail(deviceID string, attempt int, reason string, cause error, elapsed time.Duration) error {
	result := metrics.ResultFailed
	if reason == "timeout" {
		result = metrics.ResultTimeout
	}
	metrics.ObservePairing(result, elapsed)

	c.pending.failures = attempt
	retryable := attempt < c.opts.MaxAttempts

	c.logger.Warn("Pairing attempt failed",
		zap.String("device_id", deviceID),
		zap.Int("attempt", attempt),
		zap.String("reason", reason),
		zap.Bool("retryable", retryable))

	perr := &PairingFailedError{
		DeviceID:    deviceID,
		Reason:      reason,
		Attempt:     attempt,
		MaxAttempts: c.opts.MaxAttempts,
		Retryable:   retryable,
		Err:         cause,
	}

	if !retryable {
		c.pending = pending{}
		c.transition(StateIdle)
		return perr
	}

	c.pending.attempt = &PairingAttempt{DeviceID: deviceID, Phase: PhaseFailed, Attempt: attempt, Reason: reason}
	c.touch()
	return perr
}

// abort ends an attempt whose caller went away. The attempt budget is left
// as it was.
func (c *Controller) abort(deviceID string, attempt int, cause error, elapsed time.Duration) error {
	metrics.ObservePairing(metrics.ResultAborted, elapsed)
	c.logger.Info("Pairing attempt aborted by caller",
		zap.String("device_id", deviceID),
		zap.Int("attempt", attempt),
		zap.Error(cause))

	c.pending.attempt = &PairingAttempt{DeviceID: deviceID, Phase: PhaseFailed, Attempt: attempt, Reason: "aborted"}
	c.touch()
	return fmt.Errorf("%w: %v", ErrAborted, cause)
}

func (c *Controller) commit(ctx context.Context, res pairing.Result) (types.Device, error) {
	spotID := c.pending.spotID

	if err := c.deps.Catalog.Occupy(ctx, spotID); err != nil {
		if errors.Is(err, locations.ErrSpotUnavailable) || errors.Is(err, locations.ErrSpotNotFound) {
			metrics.IncDeviceCommit("stale_location")
			c.logger.Warn("Spot taken before commit, back to location step", zap.String("spot", spotID))

			c.pending.spotID = ""
			c.pending.scannedID = ""
			c.pending.attempt = nil
			c.pending.failures = 0
			c.transition(StateAwaitingLocation)
			return types.Device{}, fmt.Errorf("%w: spot %s was taken", ErrInvalidSelection, spotID)
		}
		metrics.IncDeviceCommit(metrics.ResultError)
		c.pending.attempt = &PairingAttempt{DeviceID: res.ConfirmedID, Phase: PhaseFailed, Reason: "could not claim spot"}
		c.touch()
		return types.Device{}, fmt.Errorf("failed to claim spot %s: %w", spotID, err)
	}

	in := types.DeviceInput{
		DeviceDraft: *c.pending.draft,
		Location:    spotID,
		Status:      types.DeviceStatusActive,
		HardwareID:  res.ConfirmedID,
	}

	device, err := c.deps.Devices.Create(ctx, in)
	if err != nil {
		if rerr := c.deps.Catalog.Release(ctx, spotID); rerr != nil {
			c.logger.Error("Failed to release spot after failed commit",
				zap.String("spot", spotID),
				zap.Error(rerr))
		}
		metrics.IncDeviceCommit(metrics.ResultError)
		c.pending.attempt = &PairingAttempt{DeviceID: res.ConfirmedID, Phase: PhaseFailed, Reason: "could not save device"}
		c.touch()
		return types.Device{}, fmt.Errorf("failed to commit device: %w", err)
	}

	metrics.IncDeviceCommit(metrics.ResultSuccess)
	c.logger.Info("Device onboarded",
		zap.String("device_id", device.ID),
		zap.String("hardware_id", device.HardwareID),
		zap.String("location", device.Location))

	c.committed = &device
	c.pending = pending{}
	c.pending.attempt = &PairingAttempt{DeviceID: res.ConfirmedID, Phase: PhaseComplete}
	c.transition(StateIdle)

	return device, nil
}

// begin marks an operation in flight. Caller holds c.mu.
func (c *Controller) begin(cancel context.CancelFunc, attempt *PairingAttempt) uint64 {
	c.inFlight = true
	c.cancelOp = cancel
	c.generation++
	c.pending.attempt = attempt
	c.touch()
	return c.generation
}

func (c *Controller) end() {
	c.inFlight = false
	c.cancelOp = nil
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	if from != to {
		metrics.IncOnboardingTransition(string(from), string(to))
		c.logger.Debug("Onboarding state changed",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
	c.publish(from)
}

// touch publishes a change within the current state.
func (c *Controller) touch() {
	c.publish(c.state)
}

func (c *Controller) publish(previous State) {
	c.updatedAt = time.Now()
	if c.deps.Notifier != nil {
		c.deps.Notifier.OnboardingChanged(c.snapshot(), previous)
	}
}

func (c *Controller) snapshot() Status {
	st := Status{
		SessionID: c.id,
		State:     c.state,
		Step:      c.state.Step(),
		Location:  c.pending.spotID,
		ScannedID: c.pending.scannedID,
		UpdatedAt: c.updatedAt,
	}
	if c.pending.attempt != nil {
		a := *c.pending.attempt
		st.Pairing = &a
	}
	if c.state == StateAwaitingPairing {
		st.AttemptsRemaining = c.opts.MaxAttempts - c.pending.failures
	}
	if c.committed != nil {
		d := *c.committed
		st.Device = &d
	}
	return st
}

func (c *Controller) applyDefaults(d *types.DeviceDraft) {
	if !d.NextMaintenance.IsZero() || c.deps.Defaults == nil {
		return
	}
	days := c.deps.Defaults.MaintenanceIntervalDays()
	if days <= 0 {
		return
	}

	base := d.LastMaintenance
	if base.IsZero() {
		base = d.InstallDate
	}
	if !base.IsZero() {
		d.NextMaintenance = base.AddDays(days)
	}
}

func validateDraft(d types.DeviceDraft) error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !d.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown device type %q", d.Type)}
	}
	if d.PowerUsage < 0 {
		return &ValidationError{Field: "power_usage", Message: "must not be negative"}
	}
	if !d.InstallDate.IsZero() && !d.LastMaintenance.IsZero() && d.LastMaintenance.Before(d.InstallDate) {
		return &ValidationError{Field: "last_maintenance", Message: "must not be before install_date"}
	}
	if !d.LastMaintenance.IsZero() && !d.NextMaintenance.IsZero() && d.NextMaintenance.Before(d.LastMaintenance) {
		return &ValidationError{Field: "next_maintenance", Message: "must not be before last_maintenance"}
	}
	return nil
}

// reasonFor turns a pairer error into the reason shown to the user.
func reasonFor(ctx context.Context, err error) string {
	var failure *pairing.Failure
	switch {
	case errors.As(err, &failure):
		return failure.Reason
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "aborted"
	default:
		return err.Error()
	}
}

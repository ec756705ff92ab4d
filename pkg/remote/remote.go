// Package remote drives a deployment on a provisioned cloud host.
//
// The dispatcher is a linear state machine: provision (unless instances
// already exist), resolve the instance address, copy the working tree, run
// the pipeline remotely in local mode, then verify health over the network.
package remote

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/pkg/health"
)

// State names a position in the dispatch sequence.
type State string

const (
	StateNoInstance      State = "no_instance"
	StateProvisioning    State = "provisioning"
	StateProvisioned     State = "provisioned"
	StateAddressResolved State = "address_resolved"
	StateCodeCopied      State = "code_copied"
	StateRemoteExecuting State = "remote_executing"
	StateRemoteHealthy   State = "remote_healthy"
	StateRemoteFailed    State = "remote_failed"
)

// Provisioner applies and queries infrastructure templates.
type Provisioner interface {
	CheckDir() error
	HasInstances(ctx context.Context) bool
	Init(ctx context.Context) error
	Apply(ctx context.Context) error
}

// AddressResolver locates the running tagged instance.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, tagKey, tagValue string) (string, error)
}

// Session is an established channel to the remote host.
type Session interface {
	WaitReachable(ctx context.Context, maxAttempts int, interval time.Duration) error
	CopyTree(ctx context.Context, localRoot, remoteDir string, excludes []string) error
	Run(ctx context.Context, command string) error
}

// ReadinessProber checks the remote model API once.
type ReadinessProber interface {
	CheckReady(ctx context.Context) (health.Readiness, error)
}

// Dispatcher owns one remote deployment attempt.
type Dispatcher struct {
	Provisioner Provisioner
	Resolver    AddressResolver

	// Connect opens a session to the resolved address.
	Connect func(host string) (Session, error)
	// Prober builds the health probe for the resolved address.
	Prober func(host string) ReadinessProber

	TagKey   string
	TagValue string

	LocalRoot string
	RemoteDir string
	Excludes  []string

	// RemoteCommand re-invokes the pipeline in local mode on the host.
	RemoteCommand string

	SkipInfrastructure bool

	SSHWaitAttempts int
	SSHWaitInterval time.Duration
	SettleDelay     time.Duration

	Logger *zap.Logger

	// OnTransition, when set, observes every state change.
	OnTransition func(State)

	state State
}

// State reports the dispatcher's current position.
func (d *Dispatcher) State() State { return d.state }

func (d *Dispatcher) transition(next State) {
	d.state = next
	d.Logger.Info("Dispatch state", zap.String("state", string(next)))
	if d.OnTransition != nil {
		d.OnTransition(next)
	}
}

// Run drives the dispatch to a terminal state. The returned state is
// RemoteHealthy on success; any error leaves the machine in the state whose
// transition failed (or RemoteFailed for the final health verdict).
func (d *Dispatcher) Run(ctx context.Context) (State, error) {
	d.transition(StateNoInstance)

	if err := d.Provisioner.CheckDir(); err != nil {
		return d.state, err
	}

	if d.SkipInfrastructure {
		d.Logger.Info("Skipping infrastructure provisioning")
		d.transition(StateProvisioned)
	} else if d.Provisioner.HasInstances(ctx) {
		d.Logger.Info("Instances already provisioned, skipping apply")
		d.transition(StateProvisioned)
	} else {
		d.transition(StateProvisioning)
		if err := d.Provisioner.Init(ctx); err != nil {
			return d.state, err
		}
		if err := d.Provisioner.Apply(ctx); err != nil {
			return d.state, err
		}
		d.transition(StateProvisioned)
	}

	host, err := d.Resolver.ResolveAddress(ctx, d.TagKey, d.TagValue)
	if err != nil {
		return d.state, err
	}
	d.Logger.Info("Resolved instance address", zap.String("host", host))
	d.transition(StateAddressResolved)

	session, err := d.Connect(host)
	if err != nil {
		return d.state, err
	}
	if err := session.WaitReachable(ctx, d.SSHWaitAttempts, d.SSHWaitInterval); err != nil {
		return d.state, err
	}
	if err := session.CopyTree(ctx, d.LocalRoot, d.RemoteDir, d.Excludes); err != nil {
		return d.state, err
	}
	d.transition(StateCodeCopied)

	d.transition(StateRemoteExecuting)
	if err := session.Run(ctx, d.RemoteCommand); err != nil {
		return d.state, err
	}

	d.Logger.Info("Waiting for remote services to settle",
		zap.Duration("delay", d.SettleDelay))
	if err := sleep(ctx, d.SettleDelay); err != nil {
		return d.state, err
	}

	readiness, err := d.Prober(host).CheckReady(ctx)
	if err != nil || !readiness.Ready() {
		d.transition(StateRemoteFailed)
		if err == nil {
			err = apperrors.NewExternalServiceError(
				fmt.Sprintf("remote model API on %s (status %q, model_loaded %v)",
					host, readiness.Status, readiness.ModelLoaded))
		}
		return d.state, err
	}

	d.transition(StateRemoteHealthy)
	return d.state, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

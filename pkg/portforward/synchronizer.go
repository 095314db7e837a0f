package portforward

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/record"
)

// Firewall installs and removes single forwarding rules on the host.
type Firewall interface {
	Apply(ctx context.Context, rec *record.Record, rule Rule) error
	Retract(ctx context.Context, rec *record.Record, rule Rule) error
}

// Checker reports whether a rule is currently installed.
type Checker interface {
	Check(ctx context.Context, rec *record.Record, rule Rule) (bool, error)
}

// Saver persists a record.
type Saver interface {
	Save(rec *record.Record) error
}

// Synchronizer is the only writer of a record's port-forward list. Every
// mutation changes the firewall first and the record second, so the record
// never lists a rule the firewall does not hold.
type Synchronizer struct {
	firewall Firewall
	saver    Saver
	logger   *slog.Logger
}

func NewSynchronizer(firewall Firewall, saver Saver, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Synchronizer{firewall: firewall, saver: saver, logger: logger}
}

// Add installs spec on the firewall and records it.
func (s *Synchronizer) Add(ctx context.Context, rec *record.Record, spec string) error {
	rule, err := ParseRule(spec)
	if err != nil {
		return err
	}
	if rec.HasPortforward(spec) {
		return fmt.Errorf("%w: %s on container %s", ErrDuplicateRule, spec, rec.Name)
	}

	if err := s.firewall.Apply(ctx, rec, rule); err != nil {
		return fmt.Errorf("failed to add port-forward %s: %w", spec, err)
	}

	rec.AddPortforward(spec)
	if err := s.saver.Save(rec); err != nil {
		s.logger.Error("record out of sync with firewall",
			logging.WithContainer(rec.Name),
			logging.WithField("rule", spec),
			logging.WithError(err))
		return &InconsistentStateError{Op: "apply", Container: rec.Name, Spec: spec, Err: err}
	}

	s.logger.Info("port-forward added", logging.WithContainer(rec.Name), logging.WithField("rule", spec))
	return nil
}

// Remove retracts spec from the firewall and drops it from the record.
// A spec stored in the record is matched verbatim, so entries the strict
// codec would reject can still be cleaned up.
func (s *Synchronizer) Remove(ctx context.Context, rec *record.Record, spec string) error {
	var (
		rule Rule
		err  error
	)
	if rec.HasPortforward(spec) {
		rule, err = ParseStoredRule(spec)
	} else {
		rule, err = ParseRule(spec)
		if err == nil {
			err = &RuleNotFoundError{Container: rec.Name, Spec: spec}
		}
	}
	if err != nil {
		return err
	}

	if err := s.firewall.Retract(ctx, rec, rule); err != nil {
		return fmt.Errorf("failed to remove port-forward %s: %w", spec, err)
	}

	rec.RemovePortforward(spec)
	if err := s.saver.Save(rec); err != nil {
		s.logger.Error("record out of sync with firewall",
			logging.WithContainer(rec.Name),
			logging.WithField("rule", spec),
			logging.WithError(err))
		return &InconsistentStateError{Op: "retract", Container: rec.Name, Spec: spec, Err: err}
	}

	s.logger.Info("port-forward removed", logging.WithContainer(rec.Name), logging.WithField("rule", spec))
	return nil
}

// DestroyAll removes every recorded rule. A failing rule does not stop the
// others; all failures are returned together.
func (s *Synchronizer) DestroyAll(ctx context.Context, rec *record.Record) error {
	var result *multierror.Error
	for _, spec := range rec.PortforwardsSnapshot() {
		if err := s.Remove(ctx, rec, spec); err != nil {
			s.logger.Warn("failed to remove port-forward during cleanup",
				logging.WithContainer(rec.Name),
				logging.WithField("rule", spec),
				logging.WithError(err))
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Audit returns the recorded rules the firewall does not currently hold.
// Neither side is modified.
func (s *Synchronizer) Audit(ctx context.Context, rec *record.Record, checker Checker) ([]string, error) {
	var missing []string
	for _, spec := range rec.PortforwardsSnapshot() {
		rule, err := ParseStoredRule(spec)
		if err != nil {
			return nil, err
		}
		installed, err := checker.Check(ctx, rec, rule)
		if err != nil {
			return nil, fmt.Errorf("failed to check port-forward %s: %w", spec, err)
		}
		if !installed {
			missing = append(missing, spec)
		}
	}
	return missing, nil
}

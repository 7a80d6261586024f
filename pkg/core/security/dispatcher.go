// Package security gates the concierge's tools behind an explicit
// verification state machine. All account access flows through Execute.
package security

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborline/voicedesk/pkg/core/bank"
)

// Level is the caller's current clearance.
type Level int

const (
	// LevelUnauthenticated is the starting state. Protected tools refuse.
	LevelUnauthenticated Level = iota
	// LevelVerified is entered after a correct PIN.
	LevelVerified
	// LevelHighRisk is entered on a fraud report and is never exited
	// within a session. Account data stays blocked even with the PIN.
	LevelHighRisk
)

func (l Level) String() string {
	switch l {
	case LevelUnauthenticated:
		return "unauthenticated"
	case LevelVerified:
		return "verified"
	case LevelHighRisk:
		return "high_risk"
	default:
		return "unknown"
	}
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Notification is an out-of-band operator message, such as the delayed
// confirmation that a human hand-off was picked up.
type Notification struct {
	Message string
}

const defaultNotifyDelay = 1200 * time.Millisecond

// Config configures a Dispatcher.
type Config struct {
	// PIN is the secret compared by verify_identity.
	PIN string
	// Source supplies the account snapshot. Defaults to bank.DemoSnapshot.
	Source func() bank.Snapshot
	// NotifyDelay is how long after a hand-off the pickup notification
	// fires. Defaults to 1.2s.
	NotifyDelay time.Duration
	// OnNotification receives delayed notifications. May be nil.
	OnNotification func(Notification)
	Logger         *slog.Logger
}

// Dispatcher executes tool calls against the security state machine.
// Safe for concurrent use.
type Dispatcher struct {
	mu       sync.Mutex
	level    Level
	snapshot *bank.Snapshot

	pin         string
	source      func() bank.Snapshot
	notifyDelay time.Duration
	notify      func(Notification)
	logger      *slog.Logger
}

// NewDispatcher builds a dispatcher in the unauthenticated state.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		pin:         cfg.PIN,
		source:      cfg.Source,
		notifyDelay: cfg.NotifyDelay,
		notify:      cfg.OnNotification,
		logger:      cfg.Logger,
	}
	if d.source == nil {
		d.source = bank.DemoSnapshot
	}
	if d.notifyDelay <= 0 {
		d.notifyDelay = defaultNotifyDelay
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Execute runs one tool call and returns its structured result. Execute
// never returns an error to the model; unknown tools and refused calls
// come back as failed results so the conversation can continue.
func (d *Dispatcher) Execute(call Call) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("executing tool call",
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
		slog.String("level", d.level.String()))

	switch call.Name {
	case ToolVerifyIdentity:
		return d.verifyIdentity(call)
	case ToolGetAccountSummary:
		return d.accountSummary()
	case ToolTransferToHuman:
		return d.transferToHuman(call)
	case ToolReportFraud:
		return d.reportFraud()
	default:
		d.logger.Warn("unknown tool requested", slog.String("tool", call.Name))
		return UnknownToolResult{Name: call.Name}
	}
}

func (d *Dispatcher) verifyIdentity(call Call) Result {
	// A locked account does not unlock on a correct PIN.
	if d.level == LevelHighRisk {
		return VerifyResult{Status: StatusFailed}
	}
	pin, _ := call.Args["pin"].(string)
	if pin == "" || pin != d.pin {
		d.logger.Warn("identity verification failed", slog.String("call_id", call.ID))
		return VerifyResult{Status: StatusFailed}
	}
	d.level = LevelVerified
	d.logger.Info("identity verified")
	return VerifyResult{Status: StatusSuccess}
}

func (d *Dispatcher) accountSummary() Result {
	if d.level != LevelVerified {
		return AuthRequiredResult{}
	}
	if d.snapshot == nil {
		snap := d.source()
		d.snapshot = &snap
	}
	return AccountSummaryResult{Snapshot: *d.snapshot}
}

func (d *Dispatcher) transferToHuman(call Call) Result {
	dept, _ := call.Args["department"].(string)
	if dept == "" {
		dept = "general"
	}
	ref := uuid.NewString()
	d.logger.Info("queued human hand-off",
		slog.String("department", dept), slog.String("reference", ref))
	if d.notify != nil {
		notify := d.notify
		time.AfterFunc(d.notifyDelay, func() {
			notify(Notification{
				Message: "A human agent from " + dept + " has picked up the request (ref " + ref + ").",
			})
		})
	}
	return TransferResult{Department: dept, Reference: ref}
}

func (d *Dispatcher) reportFraud() Result {
	d.level = LevelHighRisk
	ref := uuid.NewString()
	d.logger.Warn("fraud reported, account locked", slog.String("reference", ref))
	return FraudLockdownResult{Reference: ref}
}

// Level returns the current clearance.
func (d *Dispatcher) Level() Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Account returns a copy of the cached snapshot, if one has been served.
func (d *Dispatcher) Account() (bank.Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot == nil {
		return bank.Snapshot{}, false
	}
	snap := *d.snapshot
	snap.Transactions = append([]bank.Transaction(nil), d.snapshot.Transactions...)
	return snap, true
}

// Reset returns the dispatcher to the unauthenticated state and drops
// the cached snapshot. Called on session teardown.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.level = LevelUnauthenticated
	d.snapshot = nil
}

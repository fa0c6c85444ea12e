package approval

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/ccos/causalchain"
	"goa.design/ccos/ccoserr"
	"goa.design/ccos/telemetry"
)

// DefaultTTL is how long a freshly added pending discovery stays eligible
// before check_timeouts moves it to timeout/.
const DefaultTTL = 24 * time.Hour

// autoDismissFailureThreshold and autoDismissErrorRate implement the
// auto-dismiss rule: consecutive_failures > 5 OR (total_calls > 100 AND
// error_rate > 0.5).
const (
	autoDismissFailureThreshold = 5
	autoDismissMinCalls         = 100
	autoDismissErrorRate        = 0.5
)

// Queue is the filesystem-backed Approval Queue.
type Queue struct {
	mu   sync.Mutex
	root string

	pending  map[string]PendingDiscovery
	approved map[string]ApprovedDiscovery
	rejected map[string]RejectedDiscovery
	timeout  map[string]PendingDiscovery

	priorApprovedStats map[string]ApprovedDiscovery

	chain  *causalchain.Chain
	logger telemetry.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithCausalChain attaches the causal chain lifecycle transitions are
// audited to.
func WithCausalChain(chain *causalchain.Chain) Option {
	return func(q *Queue) { q.chain = chain }
}

// WithLogger attaches a logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// New constructs a Queue rooted at root, creating pending/approved/rejected/
// timeout subdirectories and loading any records already on disk.
func New(root string, opts ...Option) (*Queue, error) {
	q := &Queue{
		root:                root,
		pending:             map[string]PendingDiscovery{},
		approved:            map[string]ApprovedDiscovery{},
		rejected:            map[string]RejectedDiscovery{},
		timeout:             map[string]PendingDiscovery{},
		priorApprovedStats: map[string]ApprovedDiscovery{},
		logger:              telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(q)
	}
	for _, dir := range []string{q.pendingDir(), q.approvedDir(), q.rejectedDir(), q.timeoutDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ccoserr.Generic("approval: mkdir "+dir, err)
		}
	}
	if err := q.loadAll(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) pendingDir() string  { return filepath.Join(q.root, "pending") }
func (q *Queue) approvedDir() string { return filepath.Join(q.root, "approved") }
func (q *Queue) rejectedDir() string { return filepath.Join(q.root, "rejected") }
func (q *Queue) timeoutDir() string  { return filepath.Join(q.root, "timeout") }

func (q *Queue) loadAll() error {
	if err := loadDir(q.pendingDir(), func(dir string) error {
		var rec PendingDiscovery
		if err := readRecord(dir, &rec); err != nil {
			return err
		}
		q.pending[rec.ID] = rec
		return nil
	}); err != nil {
		return err
	}
	if err := loadDir(q.approvedDir(), func(dir string) error {
		var rec ApprovedDiscovery
		if err := readRecord(dir, &rec); err != nil {
			return err
		}
		q.approved[rec.ID] = rec
		return nil
	}); err != nil {
		return err
	}
	if err := loadDir(q.rejectedDir(), func(dir string) error {
		var rec RejectedDiscovery
		if err := readRecord(dir, &rec); err != nil {
			return err
		}
		q.rejected[rec.ID] = rec
		return nil
	}); err != nil {
		return err
	}
	return loadDir(q.timeoutDir(), func(dir string) error {
		var rec PendingDiscovery
		if err := readRecord(dir, &rec); err != nil {
			return err
		}
		q.timeout[rec.ID] = rec
		return nil
	})
}

func loadDir(root string, load func(dir string) error) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, recordFilename)); err != nil {
			if _, err := os.Stat(filepath.Join(dir, legacyFilename)); err != nil {
				continue
			}
		}
		if err := load(dir); err != nil {
			return err
		}
	}
	return nil
}

// Add enqueues a new pending discovery, or merges into an existing
// pending/approved record for the same server, per §4.5's duplicate rules.
func (q *Queue) Add(ctx context.Context, pd PendingDiscovery) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, existing := range q.approved {
		if sameServer(existing.ServerInfo, pd.ServerInfo) {
			return q.demoteApprovedToPending(ctx, id, existing, pd)
		}
	}
	for id, existing := range q.pending {
		if sameServer(existing.ServerInfo, pd.ServerInfo) {
			return q.updatePendingInPlace(ctx, id, existing, pd)
		}
	}

	pd.ID = "discovery-" + uuid.NewString()
	if pd.CreatedAt.IsZero() {
		pd.CreatedAt = time.Now().UTC()
	}
	if pd.ExpiresAt.IsZero() {
		pd.ExpiresAt = pd.CreatedAt.Add(DefaultTTL)
	}
	if err := writeRecord(filepath.Join(q.pendingDir(), sanitizeName(pd.ServerInfo.Name)), pd); err != nil {
		return "", err
	}
	q.pending[pd.ID] = pd
	return pd.ID, nil
}

func (q *Queue) demoteApprovedToPending(ctx context.Context, id string, existing ApprovedDiscovery, incoming PendingDiscovery) (string, error) {
	merged := existing.PendingDiscovery
	merged.ServerInfo.AlternativeEndpoints = mergeAlternativeEndpoints(existing.ServerInfo.AlternativeEndpoints, incoming.ServerInfo.AlternativeEndpoints)
	merged.DomainMatch = incoming.DomainMatch
	merged.RiskAssessment = incoming.RiskAssessment
	merged.RequestingGoal = incoming.RequestingGoal
	merged.CreatedAt = time.Now().UTC()
	merged.ExpiresAt = merged.CreatedAt.Add(DefaultTTL)

	slug := sanitizeName(existing.ServerInfo.Name)
	if err := moveDir(filepath.Join(q.approvedDir(), slug), filepath.Join(q.pendingDir(), slug)); err != nil {
		return "", err
	}
	movedFiles := make([]string, len(existing.CapabilityFiles))
	for i, f := range existing.CapabilityFiles {
		movedFiles[i] = rewritePath(f, "/approved/", "/pending/")
	}
	if err := writeRecord(filepath.Join(q.pendingDir(), slug), merged); err != nil {
		return "", err
	}

	delete(q.approved, id)
	q.pending[id] = merged
	existing.CapabilityFiles = movedFiles
	q.priorApprovedStats[id] = existing

	q.audit(ctx, "ApprovalDemotedToPending", id, nil)
	return id, nil
}

func (q *Queue) updatePendingInPlace(ctx context.Context, id string, existing, incoming PendingDiscovery) (string, error) {
	existing.ServerInfo.AlternativeEndpoints = mergeAlternativeEndpoints(existing.ServerInfo.AlternativeEndpoints, incoming.ServerInfo.AlternativeEndpoints)
	if incoming.ServerInfo.Description != "" {
		existing.ServerInfo.Description = incoming.ServerInfo.Description
	}
	if incoming.RiskAssessment != "" {
		existing.RiskAssessment = incoming.RiskAssessment
	}
	if incoming.RequestingGoal != "" {
		existing.RequestingGoal = incoming.RequestingGoal
	}
	if incoming.ExpiresAt.After(existing.ExpiresAt) {
		existing.ExpiresAt = incoming.ExpiresAt
	}
	if err := writeRecord(filepath.Join(q.pendingDir(), sanitizeName(existing.ServerInfo.Name)), existing); err != nil {
		return "", err
	}
	q.pending[id] = existing
	return id, nil
}

// Approve moves a pending discovery's capability files into approved/ and
// records it as an ApprovedDiscovery, bumping Version and carrying forward
// usage stats when this is a re-approval.
func (q *Queue) Approve(ctx context.Context, id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pd, ok := q.pending[id]
	if !ok {
		return ccoserr.InvalidArgumentf("approval: no pending discovery %q", id)
	}
	slug := sanitizeName(pd.ServerInfo.Name)
	if err := moveDir(filepath.Join(q.pendingDir(), slug), filepath.Join(q.approvedDir(), slug)); err != nil {
		return err
	}

	approved := ApprovedDiscovery{
		PendingDiscovery: pd,
		ApprovedAt:       time.Now().UTC(),
		ApprovalReason:   reason,
		Version:          1,
	}
	approved.ServerInfo.CapabilitiesPath = rewritePath(pd.ServerInfo.CapabilitiesPath, "/pending/", "/approved/")

	if prior, ok := q.priorApprovedStats[id]; ok {
		approved.Version = prior.Version + 1
		approved.CapabilityFiles = mergeCapabilityFiles(prior.CapabilityFiles, rewrittenFiles(pd, slug))
		approved.LastSuccessfulCall = prior.LastSuccessfulCall
		approved.ConsecutiveFailures = prior.ConsecutiveFailures
		approved.TotalCalls = prior.TotalCalls
		approved.TotalErrors = prior.TotalErrors
		delete(q.priorApprovedStats, id)
	} else {
		approved.CapabilityFiles = rewrittenFiles(pd, slug)
	}

	if err := writeRecord(filepath.Join(q.approvedDir(), slug), approved); err != nil {
		return err
	}
	delete(q.pending, id)
	q.approved[id] = approved
	q.audit(ctx, "DiscoveryApproved", id, map[string]any{"reason": reason, "version": approved.Version})
	return nil
}

func rewrittenFiles(pd PendingDiscovery, slug string) []string {
	if pd.ServerInfo.CapabilitiesPath == "" {
		return nil
	}
	return []string{rewritePath(pd.ServerInfo.CapabilitiesPath, "/pending/", "/approved/")}
}

// Reject removes a pending discovery's files and writes a RejectedDiscovery
// record.
func (q *Queue) Reject(ctx context.Context, id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pd, ok := q.pending[id]
	if !ok {
		return ccoserr.InvalidArgumentf("approval: no pending discovery %q", id)
	}
	slug := sanitizeName(pd.ServerInfo.Name)
	if err := os.RemoveAll(filepath.Join(q.pendingDir(), slug)); err != nil {
		return ccoserr.Generic("approval: remove pending files for "+id, err)
	}

	rej := RejectedDiscovery{PendingDiscovery: pd, RejectedAt: time.Now().UTC(), Reason: reason}
	if err := writeRecord(filepath.Join(q.rejectedDir(), slug), rej); err != nil {
		return err
	}
	delete(q.pending, id)
	delete(q.priorApprovedStats, id)
	q.rejected[id] = rej
	q.audit(ctx, "DiscoveryRejected", id, map[string]any{"reason": reason})
	return nil
}

// DismissServer moves an approved server to rejected/, used both for
// explicit dismissal and the auto-dismiss rule.
func (q *Queue) DismissServer(ctx context.Context, approvedID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dismissLocked(ctx, approvedID, reason)
}

func (q *Queue) dismissLocked(ctx context.Context, approvedID, reason string) error {
	ad, ok := q.approved[approvedID]
	if !ok {
		return ccoserr.InvalidArgumentf("approval: no approved server %q", approvedID)
	}
	slug := sanitizeName(ad.ServerInfo.Name)
	if err := moveDir(filepath.Join(q.approvedDir(), slug), filepath.Join(q.rejectedDir(), slug)); err != nil {
		return err
	}
	rej := RejectedDiscovery{PendingDiscovery: ad.PendingDiscovery, RejectedAt: time.Now().UTC(), Reason: reason}
	if err := writeRecord(filepath.Join(q.rejectedDir(), slug), rej); err != nil {
		return err
	}
	delete(q.approved, approvedID)
	q.rejected[approvedID] = rej
	q.audit(ctx, "ServerDismissed", approvedID, map[string]any{"reason": reason})
	return nil
}

// RetryServer moves a rejected server back to pending for another attempt.
func (q *Queue) RetryServer(ctx context.Context, rejectedID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rd, ok := q.rejected[rejectedID]
	if !ok {
		return "", ccoserr.InvalidArgumentf("approval: no rejected server %q", rejectedID)
	}
	slug := sanitizeName(rd.ServerInfo.Name)
	if err := moveDir(filepath.Join(q.rejectedDir(), slug), filepath.Join(q.pendingDir(), slug)); err != nil {
		return "", err
	}
	pd := rd.PendingDiscovery
	pd.CreatedAt = time.Now().UTC()
	pd.ExpiresAt = pd.CreatedAt.Add(DefaultTTL)
	if err := writeRecord(filepath.Join(q.pendingDir(), slug), pd); err != nil {
		return "", err
	}
	delete(q.rejected, rejectedID)
	q.pending[rejectedID] = pd
	q.audit(ctx, "ServerRetried", rejectedID, nil)
	return rejectedID, nil
}

// ListPending returns every pending discovery.
func (q *Queue) ListPending() []PendingDiscovery { return listValues(&q.mu, q.pending) }

// ListApproved returns every approved discovery.
func (q *Queue) ListApproved() []ApprovedDiscovery { return listValues(&q.mu, q.approved) }

// ListRejected returns every rejected discovery.
func (q *Queue) ListRejected() []RejectedDiscovery { return listValues(&q.mu, q.rejected) }

// ListTimeouts returns every timed-out discovery.
func (q *Queue) ListTimeouts() []PendingDiscovery { return listValues(&q.mu, q.timeout) }

func listValues[T any](mu *sync.Mutex, m map[string]T) []T {
	mu.Lock()
	defer mu.Unlock()
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// CheckTimeouts moves every pending entry whose ExpiresAt has passed into
// timeout/, preserving the record, and returns how many were moved.
func (q *Queue) CheckTimeouts(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var moved int
	for id, pd := range q.pending {
		if pd.ExpiresAt.IsZero() || pd.ExpiresAt.After(now) {
			continue
		}
		slug := sanitizeName(pd.ServerInfo.Name)
		if err := moveDir(filepath.Join(q.pendingDir(), slug), filepath.Join(q.timeoutDir(), slug)); err != nil {
			return moved, err
		}
		if err := writeRecord(filepath.Join(q.timeoutDir(), slug), pd); err != nil {
			return moved, err
		}
		delete(q.pending, id)
		q.timeout[id] = pd
		moved++
		q.audit(ctx, "DiscoveryTimedOut", id, nil)
	}
	return moved, nil
}

// UpdatePending applies mutator to the pending record for id and persists
// the result.
func (q *Queue) UpdatePending(ctx context.Context, id string, mutator func(*PendingDiscovery)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	pd, ok := q.pending[id]
	if !ok {
		return ccoserr.InvalidArgumentf("approval: no pending discovery %q", id)
	}
	mutator(&pd)
	if err := writeRecord(filepath.Join(q.pendingDir(), sanitizeName(pd.ServerInfo.Name)), pd); err != nil {
		return err
	}
	q.pending[id] = pd
	return nil
}

// CheckApprovalConflict reports whether info describes a server already
// tracked as pending or approved, returning its id.
func (q *Queue) CheckApprovalConflict(info ServerInfo) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, pd := range q.pending {
		if sameServer(pd.ServerInfo, info) {
			return id, true
		}
	}
	for id, ad := range q.approved {
		if sameServer(ad.ServerInfo, info) {
			return id, true
		}
	}
	return "", false
}

// RecordCallResult updates an approved server's usage statistics after a
// capability call, then checks the auto-dismiss rule.
func (q *Queue) RecordCallResult(ctx context.Context, approvedID string, success bool) error {
	q.mu.Lock()
	ad, ok := q.approved[approvedID]
	if !ok {
		q.mu.Unlock()
		return ccoserr.InvalidArgumentf("approval: no approved server %q", approvedID)
	}
	ad.TotalCalls++
	if success {
		now := time.Now().UTC()
		ad.LastSuccessfulCall = &now
		ad.ConsecutiveFailures = 0
	} else {
		ad.TotalErrors++
		ad.ConsecutiveFailures++
	}
	slug := sanitizeName(ad.ServerInfo.Name)
	if err := writeRecord(filepath.Join(q.approvedDir(), slug), ad); err != nil {
		q.mu.Unlock()
		return err
	}
	q.approved[approvedID] = ad
	q.mu.Unlock()

	return q.CheckAutoDismiss(ctx, approvedID)
}

// CheckAutoDismiss dismisses approvedID when it has flapped past the
// auto-dismiss thresholds: consecutive_failures > 5, or total_calls > 100
// with an error rate above 0.5. Wired to run after every RecordCallResult,
// resolving SPEC_FULL.md Open Question 1.
func (q *Queue) CheckAutoDismiss(ctx context.Context, approvedID string) error {
	q.mu.Lock()
	ad, ok := q.approved[approvedID]
	q.mu.Unlock()
	if !ok {
		return nil
	}

	errorRate := 0.0
	if ad.TotalCalls > 0 {
		errorRate = float64(ad.TotalErrors) / float64(ad.TotalCalls)
	}
	shouldDismiss := ad.ConsecutiveFailures > autoDismissFailureThreshold ||
		(ad.TotalCalls > autoDismissMinCalls && errorRate > autoDismissErrorRate)
	if !shouldDismiss {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dismissLocked(ctx, approvedID, "auto-dismissed: exceeded failure/error-rate threshold")
}

func (q *Queue) audit(ctx context.Context, kind, id string, metadata map[string]any) {
	if q.chain == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["discovery_id"] = id
	q.chain.Append(ctx, causalchain.Action{
		ActionType: causalchain.CapabilityDiscoveryCompleted,
		Metadata:   metadata,
		FunctionName: kind,
	})
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go-kobo-connect/internal/config"
	"go-kobo-connect/internal/features/credential"
	"go-kobo-connect/internal/features/form"
	"go-kobo-connect/internal/features/location"
	"go-kobo-connect/internal/features/ticket"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Configuration errors abort a run before any remote call
var (
	ErrMissingUID        = errors.New("sync: form has no kobo uid")
	ErrMissingCredential = errors.New("sync: form has no credential")
	ErrMissingBaseURL    = errors.New("sync: credential has no base url")
)

// ClientFactory builds the remote client for a credential; swappable in tests
type ClientFactory func(cred *credential.Credential, logger *zap.Logger) *Client

type SyncService interface {
	// StartSync runs the full fetch/map/upsert loop for one form
	StartSync(ctx context.Context, formID string, userID string, opts SyncOptions) (*RunReport, error)
	// SyncOne processes exactly one remote submission; returns nil when the
	// submission cannot be found remotely
	SyncOne(ctx context.Context, formID, submissionID, userID string, dryRun bool) (*ticket.Ticket, error)
	// SyncSince runs StartSync with a watermark of now minus the given minutes
	SyncSince(ctx context.Context, formID string, minutes int, userID string) (*RunReport, error)
	// SyncAllEligible runs every auto-sync form that is due; per-form failures
	// are logged and never stop the sweep
	SyncAllEligible(ctx context.Context)

	ListLogs(ctx context.Context, formID string, limit int64) ([]SyncLog, error)
	// ExportLogs renders a form's sync history as an xlsx workbook
	ExportLogs(ctx context.Context, formID string, limit int64) ([]byte, string, error)
	// GenerateMappings creates mappings for sample-submission fields whose leaf
	// name matches an assignable ticket field
	GenerateMappings(ctx context.Context, formID string) ([]form.FieldMapping, error)
	// SuggestUnmapped lists sample-submission fields that are neither mapped
	// nor auto-mappable
	SuggestUnmapped(ctx context.Context, formID string) ([]string, error)
}

type SyncServiceImpl struct {
	FormRepo     form.FormRepository
	MappingRepo  form.MappingRepository
	CredRepo     credential.CredentialRepository
	TicketRepo   ticket.TicketRepository
	LocationRepo location.LocationRepository
	LogRepo      SyncLogRepository
	Escalation   ticket.EscalationService
	Config       *config.Config
	Logger       *zap.Logger

	// NewKoboClient defaults to NewClient
	NewKoboClient ClientFactory
}

func NewSyncService(
	formRepo form.FormRepository,
	mappingRepo form.MappingRepository,
	credRepo credential.CredentialRepository,
	ticketRepo ticket.TicketRepository,
	locationRepo location.LocationRepository,
	logRepo SyncLogRepository,
	escalation ticket.EscalationService,
	cfg *config.Config,
	logger *zap.Logger,
) SyncService {
	return &SyncServiceImpl{
		FormRepo:      formRepo,
		MappingRepo:   mappingRepo,
		CredRepo:      credRepo,
		TicketRepo:    ticketRepo,
		LocationRepo:  locationRepo,
		LogRepo:       logRepo,
		Escalation:    escalation,
		Config:        cfg,
		Logger:        logger,
		NewKoboClient: NewClient,
	}
}

// runContext carries the per-run collaborators assembled by prepare
type runContext struct {
	form     *form.KoboForm
	client   *Client
	mapper   *FieldMapper
	resolver *EntityResolver
	koboID   string
	userID   string
	dryRun   bool
}

func (s *SyncServiceImpl) StartSync(ctx context.Context, formID string, userID string, opts SyncOptions) (*RunReport, error) {
	f, err := s.FormRepo.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	return s.runSync(ctx, f, userID, opts)
}

func (s *SyncServiceImpl) SyncSince(ctx context.Context, formID string, minutes int, userID string) (*RunReport, error) {
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	return s.StartSync(ctx, formID, userID, SyncOptions{Since: &since})
}

func (s *SyncServiceImpl) SyncAllEligible(ctx context.Context) {
	forms, err := s.FormRepo.ListAutoSync(ctx)
	if err != nil {
		s.Logger.Error("Listing auto-sync forms failed", zap.Error(err))
		return
	}

	for i := range forms {
		f := &forms[i]
		if !s.shouldSync(f) {
			s.Logger.Debug("Form not due for sync", zap.String("form_uid", f.KoboUID))
			continue
		}
		if _, err := s.runSync(ctx, f, "", SyncOptions{}); err != nil {
			s.Logger.Error("Scheduled sync failed",
				zap.String("form_uid", f.KoboUID), zap.Error(err))
		}
	}
}

// shouldSync implements the due-for-sync policy: disabled forms never run,
// forms without a positive interval or without a prior run are always due.
func (s *SyncServiceImpl) shouldSync(f *form.KoboForm) bool {
	if !f.AutoSync {
		return false
	}
	if f.SyncInterval == nil || *f.SyncInterval <= 0 {
		return true
	}
	if f.LastSyncAt == nil {
		return true
	}
	due := f.LastSyncAt.Add(time.Duration(*f.SyncInterval) * time.Minute)
	return !time.Now().Before(due)
}

// prepare validates the configuration and assembles the per-run pipeline.
// Schema fetch failures only disable label resolution.
func (s *SyncServiceImpl) prepare(ctx context.Context, f *form.KoboForm, userID string, dryRun bool) (*runContext, error) {
	if strings.TrimSpace(f.KoboUID) == "" {
		return nil, ErrMissingUID
	}
	if f.CredentialID.IsZero() {
		return nil, ErrMissingCredential
	}

	cred, err := s.CredRepo.GetByID(ctx, f.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("sync: loading credential: %w", err)
	}
	if strings.TrimSpace(cred.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}

	client := s.NewKoboClient(cred, s.Logger)

	var labels *LabelResolver
	koboID := ""
	asset, err := client.GetFormSchema(ctx, f.KoboUID)
	if err != nil {
		s.Logger.Warn("Form schema fetch failed, label resolution disabled",
			zap.String("form_uid", f.KoboUID), zap.Error(err))
	} else {
		labels = NewLabelResolver(asset, s.Config.PreferredLang)
		koboID = asset.UID
	}

	mappings, err := s.MappingRepo.ListByForm(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("sync: loading mappings: %w", err)
	}

	return &runContext{
		form:     f,
		client:   client,
		mapper:   NewFieldMapper(mappings, labels, s.Logger),
		resolver: NewEntityResolver(s.TicketRepo, s.LocationRepo, mappings, s.Logger),
		koboID:   koboID,
		userID:   userID,
		dryRun:   dryRun,
	}, nil
}

func (s *SyncServiceImpl) runSync(ctx context.Context, f *form.KoboForm, userID string, opts SyncOptions) (*RunReport, error) {
	rc, err := s.prepare(ctx, f, userID, opts.DryRun)
	if err != nil {
		return nil, err
	}

	report := &RunReport{DryRun: opts.DryRun}

	// Effective watermark: explicit override, else stored watermark minus the
	// backoff margin so boundary submissions are not lost.
	since := opts.Since
	if since == nil && f.LastSyncAt != nil {
		cushioned := f.LastSyncAt.Add(-time.Duration(s.Config.BackoffMinutes) * time.Minute)
		since = &cushioned
	}

	s.Logger.Info("Sync started",
		zap.String("form_uid", f.KoboUID), zap.Bool("dry_run", opts.DryRun))
	s.audit(ctx, rc, SyncStatusSuccess, SyncActionStart,
		fmt.Sprintf("Sync started for form %s", f.KoboUID), nil)

	var maxSeen *time.Time
	it := rc.client.Submissions(f.KoboUID, s.Config.SyncPageSize)
	for {
		sub, ok, err := it.Next(ctx)
		if err != nil {
			// Collection failure ends the run; watermark stays put
			s.Logger.Error("Submission collection failed",
				zap.String("form_uid", f.KoboUID), zap.Error(err))
			s.audit(ctx, rc, SyncStatusFailed, SyncActionError, err.Error(),
				bson.M{"form_uid": f.KoboUID})
			return report, err
		}
		if !ok {
			break
		}

		if ts, hasTS := sub.Time(); hasTS {
			if since != nil && !ts.After(*since) {
				report.Skipped++
				continue
			}
			if maxSeen == nil || ts.After(*maxSeen) {
				seen := ts
				maxSeen = &seen
			}
		}

		outcome, _, err := s.processSubmission(ctx, rc, sub)
		if err != nil {
			report.Failed++
			s.Logger.Error("Submission processing failed",
				zap.String("form_uid", f.KoboUID), zap.Error(err))
			s.audit(ctx, rc, SyncStatusFailed, SyncActionRowError, err.Error(),
				bson.M{"submission": bson.M(sub)})
			continue
		}
		switch outcome {
		case outcomeCreated:
			report.Created++
		case outcomeUpdated:
			report.Updated++
		default:
			report.Skipped++
		}
	}

	// Advance the watermark to the max observed submission time (or now),
	// never letting it move backwards.
	watermark := time.Now()
	if maxSeen != nil {
		watermark = *maxSeen
	}
	if f.LastSyncAt != nil && watermark.Before(*f.LastSyncAt) {
		watermark = *f.LastSyncAt
	}
	report.Watermark = &watermark

	if !opts.DryRun {
		updates := map[string]interface{}{"last_sync_at": watermark}
		if rc.koboID != "" && f.KoboID == "" {
			updates["kobo_id"] = rc.koboID
		}
		if err := s.FormRepo.Update(ctx, f.ID, updates); err != nil {
			s.Logger.Error("Persisting watermark failed",
				zap.String("form_uid", f.KoboUID), zap.Error(err))
		}
	}

	s.audit(ctx, rc, SyncStatusSuccess, SyncActionEnd,
		fmt.Sprintf("Sync finished for form %s", f.KoboUID), bson.M{
			"created": report.Created,
			"updated": report.Updated,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		})
	s.Logger.Info("Sync finished",
		zap.String("form_uid", f.KoboUID),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	return report, nil
}

func (s *SyncServiceImpl) SyncOne(ctx context.Context, formID, submissionID, userID string, dryRun bool) (*ticket.Ticket, error) {
	f, err := s.FormRepo.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	rc, err := s.prepare(ctx, f, userID, dryRun)
	if err != nil {
		return nil, err
	}

	sub, err := rc.client.GetSubmission(ctx, f.KoboUID, submissionID)
	if err != nil {
		// The single-item endpoint is optional on some deployments; degrade
		// to "not found" instead of failing.
		s.Logger.Warn("Single submission fetch failed, treating as absent",
			zap.String("form_uid", f.KoboUID),
			zap.String("submission_id", submissionID), zap.Error(err))
		return nil, nil
	}
	if sub == nil {
		return nil, nil
	}

	_, t, err := s.processSubmission(ctx, rc, sub)
	if err != nil {
		s.audit(ctx, rc, SyncStatusFailed, SyncActionRowError, err.Error(),
			bson.M{"submission": bson.M(sub)})
		return nil, err
	}
	return t, nil
}

const (
	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeSkipped = "skipped"
)

// processSubmission runs the per-row pipeline:
// lookup -> map -> enrich -> decide -> persist (or simulate).
func (s *SyncServiceImpl) processSubmission(ctx context.Context, rc *runContext, sub Submission) (string, *ticket.Ticket, error) {
	t, err := rc.resolver.FindTicket(ctx, sub)
	if err != nil {
		return "", nil, fmt.Errorf("sync: ticket lookup: %w", err)
	}
	isNew := t == nil
	if isNew {
		t = &ticket.Ticket{
			Status:     ticket.TicketStatusOpen,
			Channel:    s.Config.DefaultChannel,
			Attributes: make(map[string]interface{}),
		}
	}

	changed := false

	if locID := rc.resolver.ResolveLocation(ctx, sub); locID != nil {
		if t.LocationID == nil || *t.LocationID != *locID {
			t.LocationID = locID
			changed = true
		}
	}

	if rc.mapper.Apply(sub, t) {
		changed = true
	}

	// Business rules, each applied independently
	if priority, ok := InferPriority(t.Category); ok && t.Priority != priority {
		t.Priority = priority
		changed = true
	}
	if status, ok := InferResolvedStatus(t); ok {
		t.Status = status
		changed = true
	}
	if t.DateOfIncident == nil {
		if day, ok := InferIncidentDate(sub); ok {
			t.DateOfIncident = &day
			changed = true
		}
	}

	// Bookkeeping fields
	if ts, ok := sub.Time(); ok && assignTime(&t.DateOfSubmission, ts) {
		changed = true
	}
	if t.Channel == "" {
		t.Channel = s.Config.DefaultChannel
		changed = true
	}
	if uuid := sub.UUID(); uuid != "" && t.KoboUUID == "" {
		t.KoboUUID = uuid
		changed = true
	}
	if instanceID := sub.InstanceID(); instanceID != "" && t.KoboInstanceID == "" {
		t.KoboInstanceID = instanceID
		changed = true
	}

	if rc.dryRun {
		switch {
		case isNew:
			return outcomeCreated, t, nil
		case changed:
			return outcomeUpdated, t, nil
		default:
			return outcomeSkipped, t, nil
		}
	}

	if isNew {
		if err := s.TicketRepo.Create(ctx, t); err != nil {
			return "", nil, fmt.Errorf("sync: creating ticket: %w", err)
		}
		if err := s.Escalation.BootstrapTicket(ctx, t); err != nil {
			s.Logger.Warn("Escalation bootstrap failed",
				zap.String("ticket_id", t.ID.Hex()), zap.Error(err))
		}
		s.audit(ctx, rc, SyncStatusSuccess, SyncActionCreated,
			fmt.Sprintf("Ticket created: %s", ticketRef(t)),
			bson.M{"ticket_id": t.ID.Hex()})
		return outcomeCreated, t, nil
	}

	if !changed {
		return outcomeSkipped, t, nil
	}

	err = s.TicketRepo.Save(ctx, t)
	if errors.Is(err, ticket.ErrNoChanges) {
		// The store saw nothing to write; treat as skip, not failure
		return outcomeSkipped, t, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("sync: updating ticket: %w", err)
	}
	s.audit(ctx, rc, SyncStatusSuccess, SyncActionUpdated,
		fmt.Sprintf("Ticket updated: %s", ticketRef(t)),
		bson.M{"ticket_id": t.ID.Hex()})
	return outcomeUpdated, t, nil
}

func (s *SyncServiceImpl) ListLogs(ctx context.Context, formID string, limit int64) ([]SyncLog, error) {
	oid, err := primitive.ObjectIDFromHex(formID)
	if err != nil {
		return nil, err
	}
	return s.LogRepo.ListByForm(ctx, oid, limit)
}

func (s *SyncServiceImpl) GenerateMappings(ctx context.Context, formID string) ([]form.FieldMapping, error) {
	f, err := s.FormRepo.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	rc, err := s.prepare(ctx, f, "", false)
	if err != nil {
		return nil, err
	}

	sample, err := s.sampleSubmission(ctx, rc)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}

	existing, err := s.MappingRepo.ListByForm(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	mapped := make(map[string]bool, len(existing))
	for _, m := range existing {
		mapped[m.KoboField] = true
	}

	var created []form.FieldMapping
	for _, key := range sortedKeys(sample) {
		if mapped[key] {
			continue
		}
		leaf := leafName(key)
		if !IsAssignableField(leaf) {
			continue
		}
		m := form.FieldMapping{FormID: f.ID, KoboField: key, TicketField: leaf}
		if err := s.MappingRepo.Create(ctx, &m); err != nil {
			return created, err
		}
		created = append(created, m)
	}
	return created, nil
}

func (s *SyncServiceImpl) SuggestUnmapped(ctx context.Context, formID string) ([]string, error) {
	f, err := s.FormRepo.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	rc, err := s.prepare(ctx, f, "", false)
	if err != nil {
		return nil, err
	}

	sample, err := s.sampleSubmission(ctx, rc)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}

	existing, err := s.MappingRepo.ListByForm(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	mapped := make(map[string]bool, len(existing))
	for _, m := range existing {
		mapped[m.KoboField] = true
	}

	var unmapped []string
	for _, key := range sortedKeys(sample) {
		if !mapped[key] && !IsAssignableField(leafName(key)) {
			unmapped = append(unmapped, key)
		}
	}
	return unmapped, nil
}

func (s *SyncServiceImpl) sampleSubmission(ctx context.Context, rc *runContext) (Submission, error) {
	it := rc.client.Submissions(rc.form.KoboUID, 1)
	sub, ok, err := it.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return sub, nil
}

// audit writes one sync-log entry; failures to log never fail the run.
// Dry runs write nothing.
func (s *SyncServiceImpl) audit(ctx context.Context, rc *runContext, status SyncStatus, action SyncAction, message string, details bson.M) {
	if rc.dryRun {
		return
	}
	entry := &SyncLog{
		FormID:  rc.form.ID,
		Status:  status,
		Action:  action,
		Message: message,
		Details: details,
		UserID:  rc.userID,
	}
	if err := s.LogRepo.Create(ctx, entry); err != nil {
		s.Logger.Warn("Sync log write failed",
			zap.String("form_uid", rc.form.KoboUID), zap.Error(err))
	}
}

func ticketRef(t *ticket.Ticket) string {
	if t.Code != "" {
		return t.Code
	}
	return t.Title
}

func leafName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func sortedKeys(sub Submission) []string {
	keys := make([]string, 0, len(sub))
	for k := range sub {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

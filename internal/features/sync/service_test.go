package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
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

// ---- fakes ----

type fakeFormRepo struct {
	forms map[string]*form.KoboForm
}

func (r *fakeFormRepo) Create(ctx context.Context, f *form.KoboForm) error { return nil }
func (r *fakeFormRepo) Get(ctx context.Context, id string) (*form.KoboForm, error) {
	f, ok := r.forms[id]
	if !ok {
		return nil, errors.New("form not found")
	}
	return f, nil
}
func (r *fakeFormRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*form.KoboForm, error) {
	return r.Get(ctx, id.Hex())
}
func (r *fakeFormRepo) GetByUID(ctx context.Context, koboUID string) (*form.KoboForm, error) {
	return nil, nil
}
func (r *fakeFormRepo) List(ctx context.Context) ([]form.KoboForm, error) { return nil, nil }
func (r *fakeFormRepo) ListAutoSync(ctx context.Context) ([]form.KoboForm, error) {
	var out []form.KoboForm
	for _, f := range r.forms {
		if f.AutoSync {
			out = append(out, *f)
		}
	}
	return out, nil
}
func (r *fakeFormRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	f, ok := r.forms[id.Hex()]
	if !ok {
		return errors.New("form not found")
	}
	if v, ok := updates["last_sync_at"].(time.Time); ok {
		f.LastSyncAt = &v
	}
	if v, ok := updates["kobo_id"].(string); ok {
		f.KoboID = v
	}
	return nil
}
func (r *fakeFormRepo) Delete(ctx context.Context, id string) error { return nil }
func (r *fakeFormRepo) EnsureIndexes(ctx context.Context) error     { return nil }

type fakeMappingRepo struct {
	mappings []form.FieldMapping
}

func (r *fakeMappingRepo) Create(ctx context.Context, m *form.FieldMapping) error {
	m.ID = primitive.NewObjectID()
	r.mappings = append(r.mappings, *m)
	return nil
}
func (r *fakeMappingRepo) ListByForm(ctx context.Context, formID primitive.ObjectID) ([]form.FieldMapping, error) {
	return r.mappings, nil
}
func (r *fakeMappingRepo) Delete(ctx context.Context, id string) error { return nil }
func (r *fakeMappingRepo) DeleteByForm(ctx context.Context, formID primitive.ObjectID) error {
	return nil
}

type fakeCredRepo struct {
	cred *credential.Credential
}

func (r *fakeCredRepo) Create(ctx context.Context, cred *credential.Credential) error { return nil }
func (r *fakeCredRepo) Get(ctx context.Context, id string) (*credential.Credential, error) {
	return r.cred, nil
}
func (r *fakeCredRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*credential.Credential, error) {
	if r.cred == nil {
		return nil, errors.New("credential not found")
	}
	return r.cred, nil
}
func (r *fakeCredRepo) List(ctx context.Context) ([]credential.Credential, error) { return nil, nil }
func (r *fakeCredRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	return nil
}
func (r *fakeCredRepo) Delete(ctx context.Context, id string) error { return nil }

type fakeTicketRepo struct {
	tickets  []*ticket.Ticket
	failCode string // Create fails for tickets carrying this code
}

func cloneTicket(t *ticket.Ticket) *ticket.Ticket {
	c := *t
	if t.Attributes != nil {
		c.Attributes = copyBag(t.Attributes)
	}
	return &c
}

func (r *fakeTicketRepo) Create(ctx context.Context, t *ticket.Ticket) error {
	if r.failCode != "" && t.Code == r.failCode {
		return errors.New("insert failed")
	}
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	r.tickets = append(r.tickets, cloneTicket(t))
	return nil
}
func (r *fakeTicketRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*ticket.Ticket, error) {
	for _, t := range r.tickets {
		if t.ID == id {
			return cloneTicket(t), nil
		}
	}
	return nil, ticket.ErrNotFound
}
func (r *fakeTicketRepo) FindAll(ctx context.Context, filter bson.M, page, limit int64) ([]ticket.Ticket, int64, error) {
	return nil, 0, nil
}
func (r *fakeTicketRepo) FindByCode(ctx context.Context, code string) (*ticket.Ticket, error) {
	for _, t := range r.tickets {
		if t.Code == code {
			return cloneTicket(t), nil
		}
	}
	return nil, nil
}
func (r *fakeTicketRepo) FindByKoboRef(ctx context.Context, uuid, instanceID string) (*ticket.Ticket, error) {
	for _, t := range r.tickets {
		if (uuid != "" && t.KoboUUID == uuid) || (instanceID != "" && t.KoboInstanceID == instanceID) {
			return cloneTicket(t), nil
		}
	}
	return nil, nil
}
func (r *fakeTicketRepo) Save(ctx context.Context, t *ticket.Ticket) error {
	for i, stored := range r.tickets {
		if stored.ID != t.ID {
			continue
		}
		a, b := cloneTicket(stored), cloneTicket(t)
		a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
		if reflect.DeepEqual(a, b) {
			return ticket.ErrNoChanges
		}
		r.tickets[i] = cloneTicket(t)
		return nil
	}
	return ticket.ErrNotFound
}
func (r *fakeTicketRepo) Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	return nil
}

type fakeLocationRepo struct {
	locations []location.Location
}

func (r *fakeLocationRepo) Create(ctx context.Context, loc *location.Location) error { return nil }
func (r *fakeLocationRepo) Get(ctx context.Context, id string) (*location.Location, error) {
	return nil, nil
}
func (r *fakeLocationRepo) List(ctx context.Context, locType string) ([]location.Location, error) {
	return nil, nil
}
func (r *fakeLocationRepo) FindByCode(ctx context.Context, code string) (*location.Location, error) {
	for i := range r.locations {
		if r.locations[i].Code == code {
			return &r.locations[i], nil
		}
	}
	return nil, nil
}
func (r *fakeLocationRepo) FindByName(ctx context.Context, name string) (*location.Location, error) {
	for i := range r.locations {
		if strings.EqualFold(r.locations[i].Name, name) {
			return &r.locations[i], nil
		}
	}
	return nil, nil
}

type fakeLogRepo struct {
	entries []SyncLog
}

func (r *fakeLogRepo) Create(ctx context.Context, entry *SyncLog) error {
	r.entries = append(r.entries, *entry)
	return nil
}
func (r *fakeLogRepo) ListByForm(ctx context.Context, formID primitive.ObjectID, limit int64) ([]SyncLog, error) {
	return r.entries, nil
}

func (r *fakeLogRepo) actions() []SyncAction {
	out := make([]SyncAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeEscalation struct {
	calls int
}

func (e *fakeEscalation) BootstrapTicket(ctx context.Context, t *ticket.Ticket) error {
	e.calls++
	return nil
}

// ---- fixture ----

func newKoboServer(schemaOK bool, subs []Submission) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/assets/aTestForm/", func(w http.ResponseWriter, r *http.Request) {
		if !schemaOK {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(rawTestAsset))
	})
	mux.HandleFunc("/api/v2/assets/aTestForm/data/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v2/assets/aTestForm/data/"), "/")
		if rest == "" {
			page := submissionPage{Count: len(subs), Results: subs}
			json.NewEncoder(w).Encode(page)
			return
		}
		for _, sub := range subs {
			if fmt.Sprintf("%v", sub["_id"]) == rest {
				json.NewEncoder(w).Encode(sub)
				return
			}
		}
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

type syncFixture struct {
	service    *SyncServiceImpl
	form       *form.KoboForm
	forms      *fakeFormRepo
	mappings   *fakeMappingRepo
	tickets    *fakeTicketRepo
	logs       *fakeLogRepo
	escalation *fakeEscalation
}

func defaultMappings() []form.FieldMapping {
	return mappings(
		"case_code", "code",
		"group_a/titre", "title",
		"group_a/categorie", "category",
		"group_a/resolution", "resolution",
	)
}

func newSyncFixture(serverURL string, maps []form.FieldMapping) *syncFixture {
	f := &form.KoboForm{
		ID:           primitive.NewObjectID(),
		Name:         "Test form",
		KoboUID:      "aTestForm",
		CredentialID: primitive.NewObjectID(),
	}
	fx := &syncFixture{
		form:       f,
		forms:      &fakeFormRepo{forms: map[string]*form.KoboForm{f.ID.Hex(): f}},
		mappings:   &fakeMappingRepo{mappings: maps},
		tickets:    &fakeTicketRepo{},
		logs:       &fakeLogRepo{},
		escalation: &fakeEscalation{},
	}
	fx.service = &SyncServiceImpl{
		FormRepo:     fx.forms,
		MappingRepo:  fx.mappings,
		CredRepo:     &fakeCredRepo{cred: &credential.Credential{BaseURL: serverURL, Token: "t"}},
		TicketRepo:   fx.tickets,
		LocationRepo: &fakeLocationRepo{},
		LogRepo:      fx.logs,
		Escalation:   fx.escalation,
		Config: &config.Config{
			SyncPageSize:   100,
			BackoffMinutes: 10,
			PreferredLang:  "fr",
			DefaultChannel: "kobo",
		},
		Logger:        zap.NewNop(),
		NewKoboClient: NewClient,
	}
	return fx
}

func testSubmissions() []Submission {
	return []Submission{
		{
			"_id":                float64(1),
			"_uuid":              "uuid-1",
			"meta/instanceID":    "uuid:uuid-1",
			"_submission_time":   "2026-08-29T10:00:00",
			"start":              "2026-08-28T09:00:00",
			"case_code":          "GBV-001",
			"group_a/titre":      "Premier cas",
			"group_a/categorie":  "cs",
			"group_a/resolution": "",
		},
		{
			"_id":               float64(2),
			"_uuid":             "uuid-2",
			"meta/instanceID":   "uuid:uuid-2",
			"_submission_time":  "2026-08-29T11:00:00",
			"start":             "2026-08-28T10:00:00",
			"case_code":         "GBV-002",
			"group_a/titre":     "Second cas",
			"group_a/categorie": "cns",
		},
	}
}

// ---- tests ----

func TestStartSyncCreatesTickets(t *testing.T) {
	server := newKoboServer(true, testSubmissions())
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())

	report, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{})
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	if report.Created != 2 || report.Updated != 0 || report.Failed != 0 {
		t.Fatalf("report = %+v, want 2 created", report)
	}
	if len(fx.tickets.tickets) != 2 {
		t.Fatalf("stored %d tickets, want 2", len(fx.tickets.tickets))
	}

	first, _ := fx.tickets.FindByCode(context.Background(), "GBV-001")
	if first == nil {
		t.Fatal("ticket GBV-001 not stored")
	}
	if first.Title != "Premier cas" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Category != "Cas sensible" {
		t.Errorf("Category = %q, want label-resolved value", first.Category)
	}
	if first.Priority != ticket.TicketPriorityCritical {
		t.Errorf("Priority = %q, want Critical", first.Priority)
	}
	if first.Status != ticket.TicketStatusOpen {
		t.Errorf("Status = %q, want open", first.Status)
	}
	if first.Channel != "kobo" {
		t.Errorf("Channel = %q, want kobo", first.Channel)
	}
	if first.KoboUUID != "uuid-1" {
		t.Errorf("KoboUUID = %q", first.KoboUUID)
	}
	if first.DateOfIncident == nil || !first.DateOfIncident.Equal(time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateOfIncident = %v", first.DateOfIncident)
	}

	second, _ := fx.tickets.FindByCode(context.Background(), "GBV-002")
	if second.Priority != ticket.TicketPriorityNormal {
		t.Errorf("second Priority = %q, want Normal", second.Priority)
	}

	wantWatermark := time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
	if fx.form.LastSyncAt == nil || !fx.form.LastSyncAt.Equal(wantWatermark) {
		t.Errorf("LastSyncAt = %v, want %v", fx.form.LastSyncAt, wantWatermark)
	}

	actions := fx.logs.actions()
	want := []SyncAction{SyncActionStart, SyncActionCreated, SyncActionCreated, SyncActionEnd}
	if !reflect.DeepEqual(actions, want) {
		t.Errorf("log actions = %v, want %v", actions, want)
	}
	if fx.escalation.calls != 2 {
		t.Errorf("escalation bootstrap calls = %d, want 2", fx.escalation.calls)
	}
}

func TestStartSyncIsIdempotent(t *testing.T) {
	server := newKoboServer(true, testSubmissions())
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())

	if _, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{}); err != nil {
		t.Fatalf("first StartSync() error = %v", err)
	}

	// The watermark cushion makes both submissions eligible again; nothing
	// changed remotely, so both must come back as skips.
	report, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{})
	if err != nil {
		t.Fatalf("second StartSync() error = %v", err)
	}
	if report.Created != 0 || report.Updated != 0 || report.Skipped != 2 {
		t.Errorf("second report = %+v, want 2 skipped", report)
	}
	if len(fx.tickets.tickets) != 2 {
		t.Errorf("stored %d tickets after rerun, want 2", len(fx.tickets.tickets))
	}
}

func TestStartSyncUpdatesChangedTicket(t *testing.T) {
	subs := testSubmissions()
	server := newKoboServer(true, subs)
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())

	ctx := context.Background()
	if _, err := fx.service.StartSync(ctx, fx.form.ID.Hex(), "u1", SyncOptions{}); err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	// The case worker fills in a resolution on the remote form
	subs[0]["group_a/resolution"] = "Référé au centre social"
	subs[0]["_submission_time"] = "2026-08-29T12:00:00"

	report, err := fx.service.StartSync(ctx, fx.form.ID.Hex(), "u1", SyncOptions{})
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}
	if report.Updated != 1 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 1 updated 1 skipped", report)
	}

	updated, _ := fx.tickets.FindByCode(ctx, "GBV-001")
	if updated.Resolution != "Référé au centre social" {
		t.Errorf("Resolution = %q", updated.Resolution)
	}
	if updated.Status != ticket.TicketStatusResolved {
		t.Errorf("Status = %q, want resolved after resolution arrives", updated.Status)
	}
}

func TestStartSyncSkipsSubmissionsBehindWatermark(t *testing.T) {
	server := newKoboServer(true, testSubmissions())
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())

	// Watermark after the first submission; cushion of 10 minutes leaves the
	// second one eligible.
	last := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	fx.form.LastSyncAt = &last

	report, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{})
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}
	if report.Created != 1 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 1 created 1 skipped", report)
	}
	if _, err := fx.tickets.FindByCode(context.Background(), "GBV-002"); err != nil {
		t.Errorf("FindByCode(GBV-002) error = %v", err)
	}

	want := time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
	if fx.form.LastSyncAt == nil || !fx.form.LastSyncAt.Equal(want) {
		t.Errorf("LastSyncAt = %v, want %v", fx.form.LastSyncAt, want)
	}
}

func TestStartSyncRowFailureIsIsolated(t *testing.T) {
	server := newKoboServer(true, testSubmissions())
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())
	fx.tickets.failCode = "GBV-001"

	report, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{})
	if err != nil {
		t.Fatalf("StartSync() error = %v, row failures must not abort the run", err)
	}
	if report.Failed != 1 || report.Created != 1 {
		t.Errorf("report = %+v, want 1 failed 1 created", report)
	}

	var sawRowError bool
	for _, e := range fx.logs.entries {
		if e.Action == SyncActionRowError && e.Status == SyncStatusFailed {
			sawRowError = true
		}
	}
	if !sawRowError {
		t.Error("no row_error log entry recorded")
	}
	if fx.form.LastSyncAt == nil {
		t.Error("watermark not advanced after partially failed run")
	}
}

func TestStartSyncDryRun(t *testing.T) {
	server := newKoboServer(true, testSubmissions())
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())

	report, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{DryRun: true})
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	if report.Created != 2 {
		t.Errorf("report = %+v, want 2 created (simulated)", report)
	}
	if !report.DryRun {
		t.Error("report.DryRun = false")
	}
	if len(fx.tickets.tickets) != 0 {
		t.Errorf("dry run persisted %d tickets", len(fx.tickets.tickets))
	}
	if len(fx.logs.entries) != 0 {
		t.Errorf("dry run wrote %d log entries", len(fx.logs.entries))
	}
	if fx.form.LastSyncAt != nil {
		t.Errorf("dry run advanced watermark to %v", fx.form.LastSyncAt)
	}
}

func TestStartSyncConfigErrors(t *testing.T) {
	server := newKoboServer(true, nil)
	defer server.Close()

	t.Run("missing uid", func(t *testing.T) {
		fx := newSyncFixture(server.URL, nil)
		fx.form.KoboUID = ""
		_, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{})
		if !errors.Is(err, ErrMissingUID) {
			t.Errorf("error = %v, want ErrMissingUID", err)
		}
	})

	t.Run("missing credential", func(t *testing.T) {
		fx := newSyncFixture(server.URL, nil)
		fx.form.CredentialID = primitive.ObjectID{}
		_, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{})
		if !errors.Is(err, ErrMissingCredential) {
			t.Errorf("error = %v, want ErrMissingCredential", err)
		}
		if len(fx.logs.entries) != 0 {
			t.Error("config errors must not write log entries")
		}
	})
}

func TestStartSyncSchemaFailureDegrades(t *testing.T) {
	server := newKoboServer(false, testSubmissions())
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())

	report, err := fx.service.StartSync(context.Background(), fx.form.ID.Hex(), "u1", SyncOptions{})
	if err != nil {
		t.Fatalf("StartSync() error = %v, schema failure must not abort", err)
	}
	if report.Created != 2 {
		t.Errorf("report = %+v, want 2 created", report)
	}

	first, _ := fx.tickets.FindByCode(context.Background(), "GBV-001")
	if first.Category != "cs" {
		t.Errorf("Category = %q, want raw code without schema", first.Category)
	}
}

func TestSyncOne(t *testing.T) {
	server := newKoboServer(true, testSubmissions())
	defer server.Close()
	fx := newSyncFixture(server.URL, defaultMappings())
	ctx := context.Background()

	t.Run("creates from single submission", func(t *testing.T) {
		tk, err := fx.service.SyncOne(ctx, fx.form.ID.Hex(), "1", "u1", false)
		if err != nil {
			t.Fatalf("SyncOne() error = %v", err)
		}
		if tk == nil || tk.Code != "GBV-001" {
			t.Fatalf("SyncOne() = %+v, want GBV-001", tk)
		}
	})

	t.Run("absent submission yields nil", func(t *testing.T) {
		tk, err := fx.service.SyncOne(ctx, fx.form.ID.Hex(), "99", "u1", false)
		if err != nil {
			t.Fatalf("SyncOne() error = %v", err)
		}
		if tk != nil {
			t.Errorf("SyncOne() = %+v, want nil", tk)
		}
	})
}

func TestShouldSync(t *testing.T) {
	s := &SyncServiceImpl{}
	interval := 30
	zero := 0
	recent := time.Now().Add(-5 * time.Minute)
	old := time.Now().Add(-2 * time.Hour)

	tests := []struct {
		name string
		form form.KoboForm
		want bool
	}{
		{name: "auto sync off", form: form.KoboForm{}, want: false},
		{name: "no interval", form: form.KoboForm{AutoSync: true}, want: true},
		{name: "zero interval", form: form.KoboForm{AutoSync: true, SyncInterval: &zero}, want: true},
		{name: "never synced", form: form.KoboForm{AutoSync: true, SyncInterval: &interval}, want: true},
		{name: "recently synced", form: form.KoboForm{AutoSync: true, SyncInterval: &interval, LastSyncAt: &recent}, want: false},
		{name: "due again", form: form.KoboForm{AutoSync: true, SyncInterval: &interval, LastSyncAt: &old}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.shouldSync(&tt.form); got != tt.want {
				t.Errorf("shouldSync() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateAndSuggestMappings(t *testing.T) {
	subs := []Submission{{
		"_id":           float64(1),
		"group_x/title": "T",
		"description":   "D",
		"case_code":     "X",
	}}
	server := newKoboServer(true, subs)
	defer server.Close()
	fx := newSyncFixture(server.URL, nil)
	ctx := context.Background()

	created, err := fx.service.GenerateMappings(ctx, fx.form.ID.Hex())
	if err != nil {
		t.Fatalf("GenerateMappings() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("generated %d mappings, want 2 (title, description)", len(created))
	}
	byField := map[string]string{}
	for _, m := range created {
		byField[m.KoboField] = m.TicketField
	}
	if byField["group_x/title"] != "title" || byField["description"] != "description" {
		t.Errorf("generated mappings = %v", byField)
	}

	unmapped, err := fx.service.SuggestUnmapped(ctx, fx.form.ID.Hex())
	if err != nil {
		t.Fatalf("SuggestUnmapped() error = %v", err)
	}
	want := []string{"_id", "case_code"}
	if !reflect.DeepEqual(unmapped, want) {
		t.Errorf("SuggestUnmapped() = %v, want %v", unmapped, want)
	}
}

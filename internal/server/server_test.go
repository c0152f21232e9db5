package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notra/internal/generation"
	"notra/internal/observability"
	"notra/internal/qstash"
	"notra/internal/trigger"
	"notra/internal/workflow"
)

// --- fakes -----------------------------------------------------------------

type memoryTriggerStore struct {
	triggers map[string]*trigger.Trigger
}

func newMemoryTriggerStore() *memoryTriggerStore {
	return &memoryTriggerStore{triggers: make(map[string]*trigger.Trigger)}
}

func (s *memoryTriggerStore) GetTrigger(_ context.Context, organizationID, id string) (*trigger.Trigger, error) {
	t, ok := s.triggers[id]
	if !ok || t.OrganizationID != organizationID {
		return nil, fmt.Errorf("trigger %s: %w", id, trigger.ErrTriggerNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *memoryTriggerStore) GetTriggerByID(_ context.Context, id string) (*trigger.Trigger, error) {
	t, ok := s.triggers[id]
	if !ok {
		return nil, fmt.Errorf("trigger %s: %w", id, trigger.ErrTriggerNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *memoryTriggerStore) FindByDedupeHash(_ context.Context, organizationID, hash string) (*trigger.Trigger, error) {
	for _, t := range s.triggers {
		if t.OrganizationID == organizationID && t.DedupeHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryTriggerStore) InsertTrigger(_ context.Context, t *trigger.Trigger) error {
	cp := *t
	s.triggers[t.ID] = &cp
	return nil
}

func (s *memoryTriggerStore) UpdateTrigger(_ context.Context, t *trigger.Trigger) error {
	if _, ok := s.triggers[t.ID]; !ok {
		return fmt.Errorf("trigger %s: %w", t.ID, trigger.ErrTriggerNotFound)
	}
	cp := *t
	cp.Version++
	s.triggers[t.ID] = &cp
	return nil
}

func (s *memoryTriggerStore) DeleteTrigger(_ context.Context, organizationID, id string) (*trigger.Trigger, error) {
	t, ok := s.triggers[id]
	if !ok || t.OrganizationID != organizationID {
		return nil, fmt.Errorf("trigger %s: %w", id, trigger.ErrTriggerNotFound)
	}
	delete(s.triggers, id)
	return t, nil
}

func (s *memoryTriggerStore) GetWindow(_ context.Context, triggerID string) (trigger.LookbackWindow, bool, error) {
	t, ok := s.triggers[triggerID]
	if !ok {
		return "", false, nil
	}
	return t.LookbackWindow, true, nil
}

type stubRegistry struct{}

func (stubRegistry) CronExpression(cfg trigger.CronConfig) (string, bool) {
	return qstash.BuildCronExpression(cfg)
}

func (stubRegistry) CreateOrUpdateSchedule(_ context.Context, req trigger.ScheduleRequest) (string, error) {
	return "sched-" + req.TriggerID, nil
}

func (stubRegistry) DeleteSchedule(context.Context, string) error { return nil }

type stubDirectory struct{}

func (stubDirectory) ResolveRepositories(_ context.Context, ids []string) ([]workflow.Repository, error) {
	out := make([]workflow.Repository, len(ids))
	for i, id := range ids {
		out[i] = workflow.Repository{ID: id, Owner: "acme", Repo: id}
	}
	return out, nil
}

type stubBrands struct{}

func (stubBrands) GetBrandSettings(context.Context, string) (*generation.BrandSettings, error) {
	return nil, nil
}

type memoryPosts struct{ posts []*workflow.Post }

func (p *memoryPosts) InsertPost(_ context.Context, post *workflow.Post) error {
	cp := *post
	p.posts = append(p.posts, &cp)
	return nil
}

type recordingPublisher struct{ published []workflow.RunRequest }

func (p *recordingPublisher) Publish(_ context.Context, req workflow.RunRequest) error {
	p.published = append(p.published, req)
	return nil
}

// --- fixture ---------------------------------------------------------------

type serverFixture struct {
	store     *memoryTriggerStore
	posts     *memoryPosts
	publisher *recordingPublisher
	verifier  *qstash.SignatureVerifier
	handler   http.Handler
}

type fixtureOpts struct {
	withQueue    bool
	withVerifier bool
}

func newServerFixture(t *testing.T, opts fixtureOpts) *serverFixture {
	t.Helper()
	metrics := observability.MustNewMetrics(prometheus.NewRegistry())

	f := &serverFixture{
		store: newMemoryTriggerStore(),
		posts: &memoryPosts{},
	}

	service := trigger.NewService(f.store, stubRegistry{}, nil, metrics)
	runner := workflow.NewRunner(workflow.RunnerDeps{
		Triggers:  f.store,
		Windows:   f.store,
		Directory: stubDirectory{},
		Brands:    stubBrands{},
		Generator: &generation.MockGenerator{},
		Posts:     f.posts,
		Metrics:   metrics,
	})

	var publisher RunPublisher
	if opts.withQueue {
		f.publisher = &recordingPublisher{}
		publisher = f.publisher
	}
	if opts.withVerifier {
		v, err := qstash.NewSignatureVerifier("test-signing-key")
		require.NoError(t, err)
		f.verifier = v
	}

	f.handler = NewRouter(RouterDeps{
		Triggers:  NewTriggerHandler(service, nil),
		Workflows: NewWorkflowHandler(runner, publisher, f.verifier, nil),
		Registry:  prometheus.NewRegistry(),
	})
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-Id", "org-1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

const createBody = `{
  "name": "Weekly changelog",
  "sourceType": "cron",
  "sourceConfig": {"cron": {"frequency": "weekly", "hour": 9, "minute": 0, "dayOfWeek": 1}},
  "targets": {"repositoryIds": ["repo-a", "repo-b"]},
  "outputType": "changelog",
  "lookbackWindow": "last_7_days"
}`

// --- trigger CRUD ----------------------------------------------------------

func TestCreateTriggerEndpoint(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/triggers", createBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created trigger.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "org-1", created.OrganizationID)
	assert.Equal(t, "sched-"+created.ID, created.QStashScheduleID)
}

func TestCreateTriggerEndpoint_Duplicate(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/triggers", createBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/triggers", createBody, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "DUPLICATE_TRIGGER")
}

func TestCreateTriggerEndpoint_Invalid(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	body := strings.Replace(createBody, `"changelog"`, `"blog_post"`, 1)
	rec := f.do(t, http.MethodPost, "/api/triggers", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TRIGGER")
}

func TestCreateTriggerEndpoint_BadJSON(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/triggers", `{"name": `, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/triggers", `{"unknownField": true}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/triggers", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMPTY_BODY")
}

func TestCreateTriggerEndpoint_MissingOrganization(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/triggers", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_ORGANIZATION")
}

func TestUpdateTriggerEndpoint(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/triggers", createBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created trigger.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := strings.Replace(createBody, `"hour": 9`, `"hour": 17`, 1)
	rec = f.do(t, http.MethodPut, "/api/triggers/"+created.ID, body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated trigger.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, created.Version+1, updated.Version)
	assert.Equal(t, 17, updated.SourceConfig.Cron.Hour)
}

func TestUpdateTriggerEndpoint_NotFound(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPut, "/api/triggers/ghost", createBody, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTriggerEndpoint(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/triggers", createBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created trigger.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodDelete, "/api/triggers/"+created.ID, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/triggers/"+created.ID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// --- workflow endpoints ----------------------------------------------------

func (f *serverFixture) seedTrigger(id string) {
	f.store.triggers[id] = &trigger.Trigger{
		ID:             id,
		OrganizationID: "org-1",
		Name:           "Weekly changelog",
		SourceType:     trigger.SourceCron,
		Targets:        trigger.Targets{RepositoryIDs: []string{"repo-a"}},
		OutputType:     trigger.OutputChangelog,
		Enabled:        true,
		LookbackWindow: trigger.WindowYesterday,
	}
}

func TestScheduleCallback_VerifiedAndRunInline(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{withVerifier: true})
	f.seedTrigger("trig-1")

	body := []byte(`{"triggerId":"trig-1"}`)
	token, err := f.verifier.Sign(body, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/workflows/run", string(body), map[string]string{
		"Upstash-Signature": token,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result workflow.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	require.Len(t, f.posts.posts, 1)
}

func TestScheduleCallback_RedeliveryWithSameMessageIDResumesRun(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{withVerifier: true})
	f.seedTrigger("trig-1")

	body := []byte(`{"triggerId":"trig-1"}`)
	token, err := f.verifier.Sign(body, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	})
	require.NoError(t, err)

	headers := map[string]string{
		"Upstash-Signature":  token,
		"Upstash-Message-Id": "abc123",
	}

	first := f.do(t, http.MethodPost, "/api/workflows/run", string(body), headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := f.do(t, http.MethodPost, "/api/workflows/run", string(body), headers)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	var r1, r2 workflow.Result
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &r1))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &r2))
	assert.Equal(t, r1.PostID, r2.PostID)

	// The redelivery replays from checkpoints instead of writing a second post.
	require.Len(t, f.posts.posts, 1)
}

func TestScheduleCallback_RejectsMissingSignature(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{withVerifier: true})
	f.seedTrigger("trig-1")

	rec := f.do(t, http.MethodPost, "/api/workflows/run", `{"triggerId":"trig-1"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.posts.posts)
}

func TestScheduleCallback_RejectsTamperedBody(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{withVerifier: true})
	f.seedTrigger("trig-1")

	token, err := f.verifier.Sign([]byte(`{"triggerId":"trig-other"}`), jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/workflows/run", `{"triggerId":"trig-1"}`, map[string]string{
		"Upstash-Signature": token,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScheduleCallback_EnqueuesWhenQueueConfigured(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{withQueue: true})
	f.seedTrigger("trig-1")

	rec := f.do(t, http.MethodPost, "/api/workflows/run", `{"triggerId":"trig-1"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, "trig-1", f.publisher.published[0].TriggerID)
	assert.NotEmpty(t, f.publisher.published[0].RunID)
	// Queued, not executed.
	assert.Empty(t, f.posts.posts)
}

func TestRunNow_InlineExecution(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})
	f.seedTrigger("trig-1")

	rec := f.do(t, http.MethodPost, "/api/workflows/run-now", `{"triggerId":"trig-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.posts.posts, 1)
}

func TestRunNow_MissingTrigger(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/workflows/run-now", `{"triggerId":"ghost"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result workflow.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Canceled)
	assert.Empty(t, f.posts.posts)
}

func TestRunNow_RequiresTriggerID(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/workflows/run-now", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

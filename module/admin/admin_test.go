package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PPulse/module/event"
	"PPulse/module/fanout"
	"PPulse/module/presence"
	"PPulse/module/purge"
	"PPulse/tools/errs"
)

type fakePurger struct {
	users, convs []string
	rep          purge.Report
	err          error
}

func (f *fakePurger) DeleteUser(_ context.Context, id string) (purge.Report, error) {
	f.users = append(f.users, id)
	return f.rep, f.err
}

func (f *fakePurger) DeleteConversation(_ context.Context, id string) (purge.Report, error) {
	f.convs = append(f.convs, id)
	return f.rep, f.err
}

type fakePublisher struct {
	subjects []string
}

func (f *fakePublisher) PublishJSON(subject string, _ any) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

type fakePresencer struct {
	recs map[string]presence.Record
}

func (f *fakePresencer) GetPresence(_ context.Context, userID string) (presence.Record, error) {
	return f.recs[userID], nil
}

type fakeDeliverer struct {
	got *event.Event
	rep fanout.Report
	err error
}

func (f *fakeDeliverer) Deliver(_ context.Context, ev *event.Event) (fanout.Report, error) {
	f.got = ev
	return f.rep, f.err
}

func newRouter(t *testing.T, p *fakePurger, pr *fakePresencer, d *fakeDeliverer, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if p == nil {
		p = &fakePurger{}
	}
	if pr == nil {
		pr = &fakePresencer{recs: map[string]presence.Record{}}
	}
	if d == nil {
		d = &fakeDeliverer{}
	}
	return NewServer(p, pr, d, &fakePublisher{}, func() bool { return true }).Router(token)
}

func TestHealthz(t *testing.T) {
	r := newRouter(t, nil, nil, nil, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestHealthzDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewServer(&fakePurger{}, &fakePresencer{}, &fakeDeliverer{}, nil, func() bool { return false }).Router("")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPurgeRoutesByKind(t *testing.T) {
	p := &fakePurger{rep: purge.Report{ItemsDeleted: 3}}
	r := newRouter(t, p, nil, nil, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/purge/user/u1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/purge/conversation/c1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"u1"}, p.users)
	assert.Equal(t, []string{"c1"}, p.convs)
}

func TestPurgeUnknownKind(t *testing.T) {
	p := &fakePurger{}
	r := newRouter(t, p, nil, nil, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/purge/widget/x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, p.users)
	assert.Empty(t, p.convs)
}

func TestPurgePartialSignalsRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := &fakePurger{rep: purge.Report{Partial: true}}
	pub := &fakePublisher{}
	r := NewServer(p, &fakePresencer{}, &fakeDeliverer{}, pub, func() bool { return true }).Router("")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/purge/user/u1", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	// no purge notice while the plan is incomplete
	assert.Empty(t, pub.subjects)
}

func TestPurgePublishesNoticeOnCompletion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := &fakePurger{rep: purge.Report{ItemsDeleted: 1}}
	pub := &fakePublisher{}
	r := NewServer(p, &fakePresencer{}, &fakeDeliverer{}, pub, func() bool { return true }).Router("")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/purge/conversation/c1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"im.entity.purged"}, pub.subjects)
}

func TestGetPresence(t *testing.T) {
	pr := &fakePresencer{recs: map[string]presence.Record{
		"u1": {State: presence.StateOnline, ActiveContextID: "c9"},
	}}
	r := newRouter(t, nil, pr, nil, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/presence/u1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "online")
	assert.Contains(t, w.Body.String(), "c9")
}

func TestDeliverDecodesAndRuns(t *testing.T) {
	d := &fakeDeliverer{rep: fanout.Report{Attempted: 2}}
	r := newRouter(t, nil, nil, d, "")

	body := `{"kind":"message.created","actor_id":"u1","conversation_id":"c1","message_id":"m1","content_type":"text","body":"hi"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/deliver", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, d.got)
	assert.Equal(t, event.KindMessageCreated, d.got.Kind)
	assert.Equal(t, "m1", d.got.MessageID)
}

func TestDeliverRejectsBadPayload(t *testing.T) {
	d := &fakeDeliverer{}
	r := newRouter(t, nil, nil, d, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/deliver", strings.NewReader(`{"kind":"widget.made"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, d.got)
}

func TestDeliverPreconditionIsBadRequest(t *testing.T) {
	d := &fakeDeliverer{err: errs.Precondition("container gone")}
	r := newRouter(t, nil, nil, d, "")

	body := `{"kind":"call.created","actor_id":"u1","conversation_id":"c1","call_id":"k1"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/deliver", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminTokenGuard(t *testing.T) {
	p := &fakePurger{}
	r := newRouter(t, p, nil, nil, "s3cret")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/purge/user/u1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, p.users)

	req := httptest.NewRequest(http.MethodPost, "/admin/purge/user/u1", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"u1"}, p.users)

	// health stays open
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/document"
	"github.com/elecmate/sitebrief/core/share"
	"github.com/elecmate/sitebrief/core/user"
	testutil "github.com/elecmate/sitebrief/tests"
)

var (
	ctxBg = context.Background()

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// switchNotifier delegates to the mail notifier unless failWith is set.
type switchNotifier struct {
	share.Notifier

	mu       sync.Mutex
	failWith error
}

func (n *switchNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failWith = err
}

func (n *switchNotifier) NotifySigningLink(ctx context.Context, notif share.Notification) error {
	n.mu.Lock()
	err := n.failWith
	n.mu.Unlock()
	if err != nil {
		return err
	}
	return n.Notifier.NotifySigningLink(ctx, notif)
}

type fakeGenerator struct {
	status document.Status
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, _ briefing.Briefing) (document.Status, error) {
	g.calls++
	return g.status, g.err
}

type fakeChecker struct {
	status document.Status
	calls  int
}

func (c *fakeChecker) CheckStatus(_ context.Context, _ string) (document.Status, error) {
	c.calls++
	return c.status, nil
}

type testApp struct {
	*testutil.BriefingEnv
	server   *Server
	notifier *switchNotifier
	gen      *fakeGenerator
	checker  *fakeChecker
}

func newTestApp(t *testing.T) *testApp {
	return newTestAppWithPhotos(t, nil)
}

func newTestAppWithPhotos(t *testing.T, photos briefing.PhotoStorage) *testApp {
	env := testutil.NewBriefingEnv(t, photos)
	env.Conf.Document.PollAttempts = 3
	env.Conf.Document.PollInterval = time.Millisecond

	logger := testutil.NewLogger()
	validate, translator := testutil.NewValidator()
	templates, err := share.NewTemplates(env.Conf.Share)
	require.NoError(t, err)

	app := &testApp{
		BriefingEnv: env,
		notifier:    &switchNotifier{Notifier: briefing.NewMailNotifier(env.Mail)},
		gen:         &fakeGenerator{},
		checker:     &fakeChecker{status: document.Status{Status: "processing"}},
	}
	docs, err := document.NewService(env.Conf, env.Service, app.gen, app.checker, logger)
	require.NoError(t, err)

	app.server = NewServer(ServerDeps{
		Conf:        env.Conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		BriefingSvc: env.Service,
		DocumentSvc: docs,
		Templates:   templates,
		Notifier:    app.notifier,
	})
	return app
}

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarshallObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarshallObj(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, errors.Wrap(err, "unmarshalling response")
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, errors.Wrap(err, "unmarshalling wanted data")
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// presignedURL mimics an S3 presigned download URL signed at signedAt.
func presignedURL(signedAt time.Time, expiresSecs string) string {
	return "https://bucket.s3.eu-west-2.amazonaws.com/reports/b.pdf" +
		"?X-Amz-Algorithm=AWS4-HMAC-SHA256" +
		"&X-Amz-Date=" + signedAt.UTC().Format("20060102T150405Z") +
		"&X-Amz-Expires=" + expiresSecs +
		"&X-Amz-SignedHeaders=host&X-Amz-Signature=deadbeef"
}

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

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
	inmemdb "github.com/trezcool/schoolbus/storage/database/inmem"
	testutil "github.com/trezcool/schoolbus/tests"
)

var (
	t0 = time.Date(2021, time.March, 1, 7, 30, 0, 0, time.UTC)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errNotFound     = httpErr{Error: "not found"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type testApp struct {
	conf        *core.Config
	server      *Server
	svc         *tracking.Service
	repo        *inmemdb.LocationRepository
	clientToken string
	adminToken  string
	stopSvc     func()
}

func newTranslator(t *testing.T) ut.Translator {
	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	require.True(t, found)
	return translator
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := core.NewTestConfig()
	validate := validator.New()
	translator := newTranslator(t)
	core.InitValidators(validate, translator)
	tracking.InitValidators(validate, translator)

	opts := tracking.OptionsFromConfig(conf)
	opts.Clock = tracking.NewMockClock(t0)
	opts.FrameInterval = time.Millisecond
	svc := tracking.NewServiceWithOptions(opts, testutil.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	app := &testApp{
		conf: conf,
		svc:  svc,
		repo: inmemdb.NewLocationRepository(inmemdb.Open()),
	}
	app.server = NewServer(Deps{
		Conf:        conf,
		Logger:      testutil.NopLogger{},
		TrackingSvc: svc,
		Reports:     app.repo,
		Validate:    validate,
		Translator:  translator,
	})
	var once sync.Once
	app.stopSvc = func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	app.clientToken = getToken(t, conf, NewClaims(conf, "dispatch-1", "dispatch", false))
	app.adminToken = getToken(t, conf, NewClaims(conf, "admin-1", "admin", true))

	t.Cleanup(func() {
		app.stopSvc()
		_ = app.server.Shutdown(context.Background())
	})
	return app
}

// report applies a report straight to the tracking service.
func (app *testApp) report(t *testing.T, id, route string, lat, lng float64) {
	t.Helper()
	require.NoError(t, app.svc.Report(context.Background(), testutil.NewBusReport(id, route, lat, lng, t0)))
}

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

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

func getToken(t *testing.T, conf *core.Config, claims *Claims) string {
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "unexpected code; body: %s", rec.Body.String())
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

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jwtToken(claims *Claims) *jwt.Token {
	return &jwt.Token{Claims: claims, Valid: true}
}

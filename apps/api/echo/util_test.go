package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/absensi/apps/api/echo"
	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/export"
	"github.com/trezcool/absensi/core/roster"
	appfs "github.com/trezcool/absensi/fs"
	emailsvc "github.com/trezcool/absensi/services/email"
	dummydb "github.com/trezcool/absensi/storage/database/dummy"
	testutil "github.com/trezcool/absensi/tests"
)

var (
	monday = core.NewDate(2024, time.March, 4)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type fixture struct {
	conf       *core.Config
	clock      *testutil.Clock
	logger     *testutil.Logger
	files      *testutil.Storage
	mailer     *emailsvc.ConsoleService
	rosterRepo roster.Repository
	attRepo    attendance.Repository
	server     *echoapi.Server
	adminToken string
}

type option func(f *fixture)

func withConf(fn func(conf *core.Config)) option {
	return func(f *fixture) { fn(f.conf) }
}

func withAttendanceRepo(wrap func(attendance.Repository) attendance.Repository) option {
	return func(f *fixture) { f.attRepo = wrap(f.attRepo) }
}

func setup(t *testing.T, opts ...option) *fixture {
	db, err := dummydb.Open()
	require.NoError(t, err)

	f := &fixture{
		conf:       testutil.Config(),
		clock:      testutil.NewClock(testutil.At(monday, 7, 0)),
		logger:     new(testutil.Logger),
		files:      testutil.NewStorage(),
		rosterRepo: dummydb.NewRosterRepository(db),
		attRepo:    dummydb.NewAttendanceRepository(db),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.mailer = emailsvc.NewConsoleServiceMock(f.conf, f.logger)
	core.ParseEmailTemplates(appfs.FS, "templates/email", true, f.logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	roster.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	ledger := attendance.NewLedger(f.attRepo, f.clock, f.conf, f.logger)
	htmlRenderer, err := export.NewHTMLRenderer(appfs.FS)
	require.NoError(t, err)

	f.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           f.conf,
		Logger:         f.logger,
		Clock:          f.clock,
		Ledger:         ledger,
		Aggregator:     attendance.NewAggregator(f.attRepo, f.clock, f.conf),
		Roster:         roster.NewService(f.rosterRepo, f.files, testutil.Photos{}, f.clock, f.logger),
		Exporter:       export.NewService(ledger, f.mailer, f.clock, f.conf, export.NewCSVRenderer(), htmlRenderer),
		Files:          f.files,
		Photos:         testutil.Photos{},
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	f.adminToken = getToken(t, f.conf, core.Principal{Subject: "admin", IsAdmin: true})
	return f
}

func (f *fixture) studentToken(t *testing.T, studentID int) string {
	return getToken(t, f.conf, core.Principal{StudentID: studentID})
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
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

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

// newMultipartRequest sends fields and an optional `photo` file.
func newMultipartRequest(t *testing.T, method, path, token string, fields map[string]string, photo []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if photo != nil {
		fw, err := w.CreateFormFile("photo", "photo.jpg")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	return req
}

func getToken(t *testing.T, conf *core.Config, p core.Principal) string {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(p, conf, time.Now()), conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
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

func runHTTPTests(t *testing.T, f *fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, f.do(newAuthRequest(method, tt.path, tt.token, tt.body)))
		})
	}
}

package moodle_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/moodle/core/moodle"
	"github.com/trezcool/moodle/tests"
)

func TestClient_Authenticate(t *testing.T) {
	srv := testutil.NewMoodleServer(t)
	cli := srv.Client()

	tests := []struct {
		name      string
		baseURL   string
		username  string
		password  string
		wantMsg   string // AuthenticationError message
		wantErr   bool
		wantToken string
	}{
		{name: "valid credentials", baseURL: srv.URL, username: testutil.Username, password: testutil.Password, wantToken: testutil.Token},
		{name: "trailing slash", baseURL: srv.URL + "/", username: testutil.Username, password: testutil.Password, wantToken: testutil.Token},
		{name: "invalid password", baseURL: srv.URL, username: testutil.Username, password: "lol", wantMsg: "Invalid login, please try again"},
		{name: "invalid base url", baseURL: "not a url", username: testutil.Username, password: testutil.Password, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := cli.Authenticate(context.Background(), tt.baseURL, tt.username, tt.password)
			switch {
			case tt.wantMsg != "":
				var authErr *moodle.AuthenticationError
				require.True(t, errors.As(err, &authErr), "err = %v", err)
				assert.Equal(t, tt.wantMsg, authErr.Message)
				assert.True(t, sess.IsZero())
			case tt.wantErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantToken, sess.Token())
				assert.Equal(t, testutil.WSPath, sess.Endpoint().Path)
				assert.Equal(t, "moodlewsrestformat=json", sess.Endpoint().RawQuery)
			}
		})
	}

	logins := srv.Requests()
	require.NotEmpty(t, logins)
	assert.Equal(t, testutil.LoginPath, logins[0].Path)
	assert.Equal(t, testutil.Username, logins[0].Form.Get("username"))
	assert.Equal(t, testutil.Password, logins[0].Form.Get("password"))
}

func TestClient_Authenticate_noToken(t *testing.T) {
	for _, body := range []string{`{"token":""}`, `{"token":null}`, `{}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, body)
			}))
			defer srv.Close()

			sess, err := moodle.NewClient(srv.Client(), testutil.Logger()).
				Authenticate(context.Background(), srv.URL, testutil.Username, testutil.Password)
			var authErr *moodle.AuthenticationError
			require.True(t, errors.As(err, &authErr), "err = %v", err)
			assert.Equal(t, "no token returned", authErr.Message)
			assert.True(t, sess.IsZero())
		})
	}
}

func TestClient_Authenticate_sessionIsUsable(t *testing.T) {
	srv := testutil.NewMoodleServer(t)
	srv.Respond("core_user_get_users_by_field", `[{"id":2,"fullname":"Ada Lovelace","email":"ada@test.cd"}]`)
	cli := srv.Client()
	ctx := context.Background()

	sess, err := cli.Authenticate(ctx, srv.URL, testutil.Username, testutil.Password)
	require.NoError(t, err)

	usr, err := cli.GetUser(ctx, sess, 2)
	require.NoError(t, err)
	assert.Equal(t, moodle.User{ID: 2, FullName: "Ada Lovelace", Email: "ada@test.cd"}, usr)
}

func TestClient_Authenticate_subdirectory(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = fmt.Fprint(w, `{"token":"abc"}`)
	}))
	defer srv.Close()

	sess, err := moodle.NewClient(srv.Client(), testutil.Logger()).
		Authenticate(context.Background(), srv.URL+"/moodle", "u", "p")
	require.NoError(t, err)
	assert.Equal(t, "/moodle/login/token.php", gotPath)
	assert.Equal(t, "/moodle/webservice/rest/server.php", sess.Endpoint().Path)
}

func TestClient_GetCourseAssignments(t *testing.T) {
	srv := testutil.NewMoodleServer(t)
	srv.Respond("mod_assign_get_assignments",
		`{"courses":[{"id":7,"fullname":"X","assignments":[{"id":3,"name":"A","grade":100,"duedate":1700000000}]}]}`)
	cli := srv.Client()
	sess := srv.Session(t)
	ctx := context.Background()

	course, err := cli.GetCourseAssignments(ctx, sess, 7)
	require.NoError(t, err)
	assert.Equal(t, moodle.Course{
		ID:       7,
		FullName: "X",
		Assignments: []moodle.Assignment{
			{ID: 3, Name: "A", MaxGrade: 100, DueDate: time.Unix(1700000000, 0).UTC()},
		},
	}, course)

	calls := srv.Calls("mod_assign_get_assignments")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"7"}, calls[0]["courseids[]"])
	assert.Equal(t, testutil.Token, calls[0].Get("wstoken"))

	_, err = cli.GetCourseAssignments(ctx, sess, 8)
	var nfErr *moodle.NotFoundError
	require.True(t, errors.As(err, &nfErr), "err = %v", err)
	assert.Equal(t, moodle.KindCourse, nfErr.Kind)
	assert.Equal(t, 8, nfErr.ID)
	assert.True(t, moodle.IsNotFound(err, moodle.KindCourse))
	assert.False(t, moodle.IsNotFound(err, moodle.KindAssignment))
}

func TestClient_GetCourseAssignments_noCourses(t *testing.T) {
	srv := testutil.NewMoodleServer(t)
	srv.Respond("mod_assign_get_assignments", `{"courses":[],"warnings":[{"item":"course","itemid":7,"warningcode":"1","message":"No access rights in module context"}]}`)

	_, err := srv.Client().GetCourseAssignments(context.Background(), srv.Session(t), 7)
	assert.True(t, moodle.IsNotFound(err, moodle.KindCourse), "err = %v", err)
}

const submissionsJSON = `{"assignments":[{"assignmentid":5,"submissions":[
	{"id":1,"userid":11,"status":"submitted","timemodified":1700003600,"plugins":[
		{"type":"onlinetext","name":"Online text","fileareas":[{"area":"submissions_onlinetext","files":[
			{"filename":"text.html","filepath":"/","fileurl":"http://x/text.html"}]}],
		 "editorfields":[{"name":"onlinetext","text":"hello","format":1}]},
		{"type":"file","name":"File submissions","fileareas":[
			{"area":"other_area","files":[{"filename":"nope.txt","filepath":"/","fileurl":"http://x/nope.txt"}]},
			{"area":"submission_files","files":[
				{"filename":"report.pdf","filepath":"/","fileurl":"http://x/report.pdf","filesize":12},
				{"filename":"main.go","filepath":"/src/","fileurl":"http://x/main.go"}]}]},
		{"type":"comments","name":"Submission comments"}]},
	{"id":2,"userid":12,"status":"new","timemodified":1699990000,"plugins":[{"type":"file","fileareas":[{"area":"submission_files"}]}]},
	{"id":3,"userid":13,"status":"submitted","timemodified":1699990000,"plugins":[]}
]}],"warnings":[]}`

func TestClient_GetSubmissions(t *testing.T) {
	srv := testutil.NewMoodleServer(t)
	srv.Respond("mod_assign_get_submissions", submissionsJSON)
	cli := srv.Client()

	subs, err := cli.GetSubmissions(context.Background(), srv.Session(t), 5)
	require.NoError(t, err)
	require.Len(t, subs, 3)

	assert.Equal(t, moodle.Submission{
		UserID:      11,
		Status:      "submitted",
		SubmittedAt: time.Unix(1700003600, 0).UTC(),
		Files: []moodle.SubmissionFile{
			{Filename: "report.pdf", FileURL: "http://x/report.pdf", RelativePath: ""},
			{Filename: "main.go", FileURL: "http://x/main.go", RelativePath: "src/"},
		},
	}, subs[0])
	assert.Empty(t, subs[1].Files)
	assert.Empty(t, subs[2].Files)

	calls := srv.Calls("mod_assign_get_submissions")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"5"}, calls[0]["assignmentids[]"])
}

func TestClient_GetSubmissions_otherAssignments(t *testing.T) {
	srv := testutil.NewMoodleServer(t)
	srv.Respond("mod_assign_get_submissions",
		`{"assignments":[{"assignmentid":4,"submissions":[{"userid":1,"timemodified":1,"plugins":[]}]},{"assignmentid":6,"submissions":[]}]}`)

	subs, err := srv.Client().GetSubmissions(context.Background(), srv.Session(t), 5)
	assert.Nil(t, subs)
	var nfErr *moodle.NotFoundError
	require.True(t, errors.As(err, &nfErr), "err = %v", err)
	assert.Equal(t, &moodle.NotFoundError{Kind: moodle.KindAssignment, ID: 5}, nfErr)
}

func TestClient_GetUser(t *testing.T) {
	srv := testutil.NewMoodleServer(t)
	srv.Respond("core_user_get_users_by_field",
		`[{"id":3,"fullname":"Wrong","email":"w@test.cd"},{"id":2,"fullname":"Ada Lovelace","email":"ada@test.cd","username":"ada"}]`)
	cli := srv.Client()
	sess := srv.Session(t)
	ctx := context.Background()

	usr, err := cli.GetUser(ctx, sess, 2)
	require.NoError(t, err)
	assert.Equal(t, moodle.User{ID: 2, FullName: "Ada Lovelace", Email: "ada@test.cd"}, usr)

	calls := srv.Calls("core_user_get_users_by_field")
	require.Len(t, calls, 1)
	assert.Equal(t, "id", calls[0].Get("field"))
	assert.Equal(t, []string{"2"}, calls[0]["values[]"])

	_, err = cli.GetUser(ctx, sess, 4)
	assert.True(t, moodle.IsNotFound(err, moodle.KindUser), "err = %v", err)
}

func TestClient_errors(t *testing.T) {
	ctx := context.Background()
	getUser := func(cli moodle.Client, sess moodle.Session) error {
		_, err := cli.GetUser(ctx, sess, 2)
		return err
	}
	getAssignments := func(cli moodle.Client, sess moodle.Session) error {
		_, err := cli.GetCourseAssignments(ctx, sess, 7)
		return err
	}
	getSubmissions := func(cli moodle.Client, sess moodle.Session) error {
		_, err := cli.GetSubmissions(ctx, sess, 5)
		return err
	}
	assignments := func(assignment string) string {
		return `{"courses":[{"id":7,"fullname":"X","assignments":[` + assignment + `]}]}`
	}
	submissions := func(submission string) string {
		return `{"assignments":[{"assignmentid":5,"submissions":[` + submission + `]}]}`
	}

	tests := []struct {
		name    string
		call    func(moodle.Client, moodle.Session) error // GetUser if nil
		status  int
		body    string
		check   func(error) bool
		wantErr string
	}{
		{name: "html body", status: http.StatusOK, body: "<html>maintenance</html>", check: moodle.IsTransportError},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", check: moodle.IsTransportError},
		{name: "wrong shape", status: http.StatusOK, body: `{"id":"2"}`, check: moodle.IsDecodeError},
		{name: "wrong field type", status: http.StatusOK, body: `[{"id":"two"}]`, check: moodle.IsDecodeError},
		{name: "user: missing email", status: http.StatusOK, body: `[{"id":2,"fullname":"Ada Lovelace"}]`, check: moodle.IsDecodeError},
		{name: "user: missing id", status: http.StatusOK, body: `[{"fullname":"Ada Lovelace","email":"ada@test.cd"}]`, check: moodle.IsDecodeError},
		{name: "assignments: unexpected object", call: getAssignments, status: http.StatusOK, body: `{"unexpected":1}`, check: moodle.IsDecodeError},
		{name: "assignments: null courses", call: getAssignments, status: http.StatusOK, body: `{"courses":null}`, check: moodle.IsDecodeError},
		{name: "assignments: course without assignments", call: getAssignments, status: http.StatusOK, body: `{"courses":[{"id":7,"fullname":"X"}]}`, check: moodle.IsDecodeError},
		{name: "assignments: course without fullname", call: getAssignments, status: http.StatusOK, body: `{"courses":[{"id":7,"assignments":[]}]}`, check: moodle.IsDecodeError},
		{
			name: "assignments: missing grade", call: getAssignments, status: http.StatusOK,
			body:    assignments(`{"id":3,"name":"A","duedate":0}`),
			check:   moodle.IsDecodeError,
			wantErr: `moodle: decoding mod_assign_get_assignments: missing field "grade"`,
		},
		{name: "assignments: missing duedate", call: getAssignments, status: http.StatusOK, body: assignments(`{"id":3,"name":"A","grade":10}`), check: moodle.IsDecodeError},
		{name: "assignments: missing name", call: getAssignments, status: http.StatusOK, body: assignments(`{"id":3,"grade":10,"duedate":0}`), check: moodle.IsDecodeError},
		{name: "submissions: unexpected object", call: getSubmissions, status: http.StatusOK, body: `{"unexpected":1}`, check: moodle.IsDecodeError},
		{name: "submissions: group without submissions", call: getSubmissions, status: http.StatusOK, body: `{"assignments":[{"assignmentid":5}]}`, check: moodle.IsDecodeError},
		{name: "submissions: group without id", call: getSubmissions, status: http.StatusOK, body: `{"assignments":[{"submissions":[]}]}`, check: moodle.IsDecodeError},
		{name: "submissions: missing userid", call: getSubmissions, status: http.StatusOK, body: submissions(`{"timemodified":1,"plugins":[]}`), check: moodle.IsDecodeError},
		{name: "submissions: missing timemodified", call: getSubmissions, status: http.StatusOK, body: submissions(`{"userid":1,"plugins":[]}`), check: moodle.IsDecodeError},
		{name: "submissions: missing plugins", call: getSubmissions, status: http.StatusOK, body: submissions(`{"userid":1,"timemodified":1}`), check: moodle.IsDecodeError},
		{name: "submissions: plugin without type", call: getSubmissions, status: http.StatusOK, body: submissions(`{"userid":1,"timemodified":1,"plugins":[{"fileareas":[]}]}`), check: moodle.IsDecodeError},
		{
			name: "submissions: file area without area", call: getSubmissions, status: http.StatusOK,
			body:  submissions(`{"userid":1,"timemodified":1,"plugins":[{"type":"comments","fileareas":[{"files":[]}]}]}`),
			check: moodle.IsDecodeError,
		},
		{
			name: "submissions: file without url", call: getSubmissions, status: http.StatusOK,
			body:  submissions(`{"userid":1,"timemodified":1,"plugins":[{"type":"file","fileareas":[{"area":"submission_files","files":[{"filename":"a.txt","filepath":"/"}]}]}]}`),
			check: moodle.IsDecodeError,
		},
		{name: "invalid token", status: http.StatusOK, body: `{"exception":"moodle_exception","errorcode":"invalidtoken","message":"Invalid token"}`, check: moodle.IsAuthenticationError},
		{
			name: "exception", status: http.StatusOK,
			body:    `{"exception":"required_capability_exception","errorcode":"nopermissions","message":"Sorry, but you do not currently have permissions"}`,
			check:   func(err error) bool { var rErr *moodle.RemoteError; return errors.As(err, &rErr) && rErr.ErrorCode == "nopermissions" },
			wantErr: "moodle: required_capability_exception (nopermissions): Sorry, but you do not currently have permissions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()
			u, _ := url.Parse(srv.URL)
			sess := moodle.NewSession(u, "abc")

			call := tt.call
			if call == nil {
				call = getUser
			}
			err := call(moodle.NewClient(srv.Client(), testutil.Logger()), sess)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %T %v", err, err)
			assert.True(t, tt.check(errors.Wrap(err, "wrapped")), "classification lost when wrapped")
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, err.Error())
			}
		})
	}
}

func TestClient_connectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(srv.URL)
	srv.Close()

	_, err := moodle.NewClient(nil, testutil.Logger()).GetUser(context.Background(), moodle.NewSession(u, "abc"), 1)
	assert.True(t, moodle.IsTransportError(err), "err = %v", err)
}

func TestClient_zeroSession(t *testing.T) {
	cli := moodle.NewClient(nil, testutil.Logger())
	_, err := cli.GetUser(context.Background(), moodle.Session{}, 1)
	assert.True(t, moodle.IsAuthenticationError(err), "err = %v", err)
}

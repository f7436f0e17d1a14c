package testutil

import (
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/trezcool/moodle/core"
	"github.com/trezcool/moodle/core/moodle"
	"github.com/trezcool/moodle/services/logger"
)

const (
	Username = "teacher"
	Password = "s3cret"
	Token    = "abc"

	LoginPath = "/login/token.php"
	WSPath    = "/webservice/rest/server.php"
	FilesPath = "/webservice/pluginfile.php/"

	invalidLogin = `{"error":"Invalid login, please try again","errorcode":"invalidlogin"}`
	invalidToken = `{"exception":"moodle_exception","errorcode":"invalidtoken","message":"Invalid token - token not found"}`
)

// Request is a request received by a MoodleServer.
type Request struct {
	Path string
	Form url.Values
}

// MoodleServer is a fake Moodle: it logs in Username/Password, answers web-service functions with
// canned JSON bodies and serves files registered with AddFile.
type MoodleServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]string // {wsfunction: body}
	files     map[string][]byte // {path: content}
	requests  []Request
}

func NewMoodleServer(t *testing.T) *MoodleServer {
	s := &MoodleServer{
		responses: make(map[string]string),
		files:     make(map[string][]byte),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(LoginPath, s.login)
	mux.HandleFunc(WSPath, s.webservice)
	mux.HandleFunc(FilesPath, s.file)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Respond sets the JSON body returned for `wsfunction`.
func (s *MoodleServer) Respond(wsfunction, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[wsfunction] = body
}

// AddFile serves `content` and returns its URL.
func (s *MoodleServer) AddFile(name string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := FilesPath + name
	s.files[path] = content
	return s.URL + path
}

// Calls returns the forms received for `wsfunction`, in order.
func (s *MoodleServer) Calls(wsfunction string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	var forms []url.Values
	for _, req := range s.requests {
		if req.Path == WSPath && req.Form.Get("wsfunction") == wsfunction {
			forms = append(forms, req.Form)
		}
	}
	return forms
}

// Requests returns every request received so far.
func (s *MoodleServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Session returns a session on this server's web-service endpoint.
func (s *MoodleServer) Session(t *testing.T) moodle.Session {
	u, err := url.Parse(s.URL + WSPath + "?moodlewsrestformat=json")
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	return moodle.NewSession(u, Token)
}

func (s *MoodleServer) record(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Path: r.URL.Path, Form: r.PostForm})
	return true
}

func (s *MoodleServer) login(w http.ResponseWriter, r *http.Request) {
	if !s.record(r) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("service") != "moodle_mobile_app" {
		_, _ = fmt.Fprint(w, `{"error":"Web service is not available","errorcode":"servicenotavailable"}`)
		return
	}
	if r.PostForm.Get("username") != Username || r.PostForm.Get("password") != Password {
		_, _ = fmt.Fprint(w, invalidLogin)
		return
	}
	_, _ = fmt.Fprintf(w, `{"token":%q,"privatetoken":null}`, Token)
}

func (s *MoodleServer) webservice(w http.ResponseWriter, r *http.Request) {
	if !s.record(r) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("wstoken") != Token {
		_, _ = fmt.Fprint(w, invalidToken)
		return
	}
	fn := r.PostForm.Get("wsfunction")
	s.mu.Lock()
	body, ok := s.responses[fn]
	s.mu.Unlock()
	if !ok {
		_, _ = fmt.Fprintf(w, `{"exception":"dml_missing_record_exception","errorcode":"invalidrecord","message":"Can't find data record in database table external_functions. (%s)"}`, fn)
		return
	}
	_, _ = fmt.Fprint(w, body)
}

func (s *MoodleServer) file(w http.ResponseWriter, r *http.Request) {
	if !s.record(r) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("token") != Token {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.mu.Lock()
	content, ok := s.files[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(content)
}

// Logger returns a Logger discarding everything.
func Logger() core.Logger {
	return logsvc.NewConsoleLogger(log.New(ioutil.Discard, "", 0), true)
}

// Client returns a moodle.Client talking to `s`.
func (s *MoodleServer) Client() moodle.Client {
	return moodle.NewClient(s.Server.Client(), Logger())
}

// AssignmentsJSON returns a mod_assign_get_assignments body with one course.
func AssignmentsJSON(courseID int, fullname string, assignments ...string) string {
	return fmt.Sprintf(`{"courses":[{"id":%d,"fullname":%q,"shortname":"c","assignments":[%s]}],"warnings":[]}`,
		courseID, fullname, strings.Join(assignments, ","))
}

// AssignmentJSON returns an assignment object as found in mod_assign_get_assignments.
func AssignmentJSON(id int, name string, grade float64, duedate int64) string {
	return fmt.Sprintf(`{"id":%d,"cmid":1,"course":1,"name":%q,"grade":%v,"duedate":%d,"nosubmissions":0}`, id, name, grade, duedate)
}

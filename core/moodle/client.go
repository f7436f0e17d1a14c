// Package moodle is a client for the Moodle web-service API: login, assignments, submissions,
// users, submission file downloads and grade uploads.
//
// Every operation takes the Session returned by Client.Authenticate and performs exactly one
// request; nothing is retried or cached.
package moodle

import (
	"context"
	"net/http"

	"github.com/trezcool/moodle/core"
)

type (
	Client interface {
		// Authenticate exchanges username & password for a web-service token.
		Authenticate(ctx context.Context, baseURL, username, password string) (Session, error)

		// GetCourseAssignments fetches the course with id `courseID` along with its assignments.
		GetCourseAssignments(ctx context.Context, sess Session, courseID int) (Course, error)
		// GetSubmissions fetches all the submissions of the assignment with id `assignmentID`.
		GetSubmissions(ctx context.Context, sess Session, assignmentID int) ([]Submission, error)
		GetUser(ctx context.Context, sess Session, userID int) (User, error)

		// DownloadFile writes the content of `file` to a new file at `dest`.
		DownloadFile(ctx context.Context, sess Session, file SubmissionFile, dest string) error
		// UploadGrade saves `grade` (clamped into [0, assignment.MaxGrade]) and the optional feedback
		// for the user's latest attempt.
		UploadGrade(ctx context.Context, sess Session, assignment Assignment, usr User, grade float64, feedback *string) error
	}

	client struct {
		http   *http.Client
		logger core.Logger
	}
)

var _ Client = (*client)(nil)

// NewClient returns a Client sending its requests through httpClient (http.DefaultClient if nil).
func NewClient(httpClient *http.Client, logger core.Logger) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		http:   httpClient,
		logger: logger,
	}
}

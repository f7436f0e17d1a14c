package moodle

import (
	"context"
	"encoding/json"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	fnGetSubmissions = "mod_assign_get_submissions"

	filePluginType      = "file"
	submissionFilesArea = "submission_files"
)

type Submission struct {
	UserID      int
	Status      string    // new, draft, submitted...
	SubmittedAt time.Time // UTC; last modification
	Files       []SubmissionFile
}

type SubmissionFile struct {
	Filename     string
	FileURL      string
	RelativePath string // server path without leading separators
}

// FullPath returns the file's path relative to the submission root.
func (f SubmissionFile) FullPath() string {
	return filepath.Join(filepath.FromSlash(f.RelativePath), f.Filename)
}

// StripLeadingSeparator removes all leading "/" from `path`, so that it can safely be joined to a
// local directory. It is idempotent.
func StripLeadingSeparator(path string) string {
	return strings.TrimLeft(path, "/")
}

// raw response shapes; pointers mark the keys that must be present
type (
	submissionsResponse struct {
		Assignments *[]assignmentSubmissions `json:"assignments"`
	}

	assignmentSubmissions struct {
		AssignmentID *int          `json:"assignmentid"`
		Submissions  *[]Submission `json:"submissions"`
	}

	submissionWire struct {
		UserID       *int          `json:"userid"`
		Status       string        `json:"status"`
		TimeModified *int64        `json:"timemodified"`
		Plugins      *[]pluginWire `json:"plugins"`
	}

	pluginWire struct {
		Type      *string        `json:"type"`
		FileAreas []fileAreaWire `json:"fileareas"`
	}

	fileAreaWire struct {
		Area  *string    `json:"area"`
		Files []fileWire `json:"files"`
	}

	fileWire struct {
		Filename *string `json:"filename"`
		FileURL  *string `json:"fileurl"`
		FilePath *string `json:"filepath"`
	}
)

func (r *submissionsResponse) check() error {
	if r.Assignments == nil {
		return missingField("assignments")
	}
	for _, as := range *r.Assignments {
		switch {
		case as.AssignmentID == nil:
			return missingField("assignmentid")
		case as.Submissions == nil:
			return missingField("submissions")
		}
	}
	return nil
}

func (s *Submission) UnmarshalJSON(data []byte) error {
	var w submissionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.UserID == nil:
		return missingField("userid")
	case w.TimeModified == nil:
		return missingField("timemodified")
	case w.Plugins == nil:
		return missingField("plugins")
	}
	files, err := submittedFiles(*w.Plugins)
	if err != nil {
		return err
	}
	*s = Submission{
		UserID:      *w.UserID,
		Status:      w.Status,
		SubmittedAt: unixTime(*w.TimeModified),
		Files:       files,
	}
	return nil
}

// submittedFiles keeps the files of the "submission_files" area of the "file" plugin and drops
// everything else (online text, comments, feedback areas...).
func submittedFiles(plugins []pluginWire) ([]SubmissionFile, error) {
	for _, plugin := range plugins {
		if plugin.Type == nil {
			return nil, missingField("type")
		}
		for _, area := range plugin.FileAreas {
			if area.Area == nil {
				return nil, missingField("area")
			}
		}
	}

	for _, plugin := range plugins {
		if *plugin.Type != filePluginType {
			continue
		}
		for _, area := range plugin.FileAreas {
			if *area.Area != submissionFilesArea {
				continue
			}
			files := make([]SubmissionFile, 0, len(area.Files))
			for _, f := range area.Files {
				switch {
				case f.Filename == nil:
					return nil, missingField("filename")
				case f.FileURL == nil:
					return nil, missingField("fileurl")
				case f.FilePath == nil:
					return nil, missingField("filepath")
				}
				files = append(files, SubmissionFile{
					Filename:     *f.Filename,
					FileURL:      *f.FileURL,
					RelativePath: StripLeadingSeparator(*f.FilePath),
				})
			}
			return files, nil
		}
	}
	return []SubmissionFile{}, nil
}

func (c *client) GetSubmissions(ctx context.Context, sess Session, assignmentID int) ([]Submission, error) {
	params := url.Values{}
	params.Set("assignmentids[]", strconv.Itoa(assignmentID))

	var resp submissionsResponse
	if err := c.call(ctx, sess, fnGetSubmissions, params, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, &DecodeError{Op: fnGetSubmissions, Err: err}
	}
	for _, as := range *resp.Assignments {
		if *as.AssignmentID == assignmentID {
			return *as.Submissions, nil
		}
	}
	return nil, notFound(KindAssignment, assignmentID)
}

package moodle

import (
	"context"
	"io"
	"math"
	"net/url"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/moodle/core"
)

const (
	fnSaveGrade = "mod_assign_save_grade"

	// feedbackFormatPlain is Moodle's FORMAT_PLAIN.
	feedbackFormatPlain = "2"
)

func (c *client) DownloadFile(ctx context.Context, sess Session, file SubmissionFile, dest string) error {
	if sess.IsZero() {
		return &AuthenticationError{Message: "no active session"}
	}
	op := "download " + file.Filename

	form := url.Values{}
	form.Set("token", sess.token)
	resp, err := c.send(ctx, op, file.FileURL, form)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	body := &bodyReader{r: resp.Body}
	n, err := io.Copy(f, body)
	if cErr := f.Close(); err == nil && cErr != nil {
		return errors.Wrapf(cErr, "closing %s", dest)
	}
	switch {
	case body.err != nil:
		return &TransportError{Op: op, Err: errors.Wrap(body.err, "reading response body")}
	case err != nil:
		return errors.Wrapf(err, "writing %s", dest)
	}

	c.logger.Debug("moodle: downloaded "+file.Filename, map[string]interface{}{"dest": dest, "bytes": n})
	return nil
}

// bodyReader remembers the last read error so that a failed copy can be blamed on the network or
// on the local disk.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}

func (c *client) UploadGrade(ctx context.Context, sess Session, assignment Assignment, usr User, grade float64, feedback *string) error {
	var text string
	if feedback != nil {
		text = core.CleanString(*feedback)
	}
	clamped := ClampGrade(grade, assignment.MaxGrade)
	if clamped != grade {
		c.logger.Info("moodle: grade clamped", map[string]interface{}{"grade": grade, "clamped": clamped, "max_grade": assignment.MaxGrade}, usr)
	}

	params := url.Values{}
	params.Set("assignmentid", strconv.Itoa(assignment.ID))
	params.Set("userid", strconv.Itoa(usr.ID))
	params.Set("grade", FormatGrade(clamped))
	params.Set("attemptnumber", "-1")
	params.Set("addattempt", "0")
	params.Set("workflowstate", "")
	params.Set("applytoall", "0")
	params.Set("plugindata[assignfeedbackcomments_editor][text]", text)
	params.Set("plugindata[assignfeedbackcomments_editor][format]", feedbackFormatPlain)

	return c.call(ctx, sess, fnSaveGrade, params, nil)
}

// ClampGrade returns `grade` bounded to [0, max].
// Out of range grades are corrected rather than rejected.
func ClampGrade(grade, max float64) float64 {
	if max < 0 {
		max = 0
	}
	if math.IsNaN(grade) || grade < 0 {
		return 0
	}
	if grade > max {
		return max
	}
	return grade
}

// FormatGrade formats a grade with the shortest representation (85, 85.5).
func FormatGrade(grade float64) string {
	return strconv.FormatFloat(grade, 'f', -1, 64)
}

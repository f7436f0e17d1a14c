package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/moodle/core"
	"github.com/trezcool/moodle/core/moodle"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	isTerminalFunc   = term.IsTerminal   // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	client moodle.Client
	logger core.Logger
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  list-assignments -course-id ID                                - list the assignments of a course")
	fmt.Fprintln(cli.out, "  download-submissions -course-id ID -assignment-id ID [-dir DIR] [-output-file FILE]")
	fmt.Fprintln(cli.out, "                                                                - download all submission files of an assignment")
	fmt.Fprintln(cli.out, "  upload-grades -file FILE                                      - upload the grades of a grades file (.yaml|.xlsx)")
	fmt.Fprintln(cli.out, "")
	fmt.Fprintln(cli.out, "Every command accepts -base-url, -username & -password (defaults: $MOODLE_BASE_URL, $MOODLE_USERNAME, $MOODLE_PASSWORD).")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "list-assignments":
		cmd := cli.newFlagSet(args[1])
		var courseID int
		intVar(cmd, &courseID, "course-id", "c", "The course ID.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if courseID <= 0 {
			cmd.Usage()
			return errHelp
		}
		return cli.listAssignments(ctx, courseID)

	case "download-submissions":
		cmd := cli.newFlagSet(args[1])
		var courseID, assignmentID int
		var dir, outputFile string
		intVar(cmd, &courseID, "course-id", "c", "The course ID.")
		intVar(cmd, &assignmentID, "assignment-id", "a", "The assignment ID.")
		stringVar(cmd, &dir, "dir", "d", ".", "The directory to download the submissions to.")
		stringVar(cmd, &outputFile, "output-file", "o", "", "Optional grades file (.yaml|.xlsx) describing the submissions.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if courseID <= 0 || assignmentID <= 0 {
			cmd.Usage()
			return errHelp
		}
		return cli.downloadSubmissions(ctx, courseID, assignmentID, dir, outputFile)

	case "upload-grades":
		cmd := cli.newFlagSet(args[1])
		var file string
		stringVar(cmd, &file, "file", "f", "", "The grades file (.yaml|.xlsx) to upload.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if file == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.uploadGrades(ctx, file)

	default:
		cli.printUsage()
		return errHelp
	}
}

// newFlagSet returns a FlagSet with the connection flags every command accepts.
func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	stringVar(cmd, &cli.conf.Moodle.BaseURL, "base-url", "b", cli.conf.Moodle.BaseURL, "The Moodle base URL.")
	stringVar(cmd, &cli.conf.Moodle.Username, "username", "u", cli.conf.Moodle.Username, "The Moodle username.")
	stringVar(cmd, &cli.conf.Moodle.Password, "password", "p", cli.conf.Moodle.Password, "The Moodle password (prompted if empty).")
	return cmd
}

func parse(cmd *flag.FlagSet, args []string) error {
	if err := cmd.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return core.NewArgumentError(err.Error())
	}
	if cmd.NArg() > 0 {
		cmd.Usage()
		return core.NewArgumentError(fmt.Sprintf("unexpected arguments: %v", cmd.Args()))
	}
	return nil
}

func intVar(cmd *flag.FlagSet, p *int, name, short, usage string) {
	cmd.IntVar(p, name, 0, usage)
	cmd.IntVar(p, short, 0, "Shorthand for -"+name+".")
}

func stringVar(cmd *flag.FlagSet, p *string, name, short, value, usage string) {
	cmd.StringVar(p, name, value, usage)
	cmd.StringVar(p, short, value, "Shorthand for -"+name+".")
}

// login validates the connection settings, prompts for the password if needed and authenticates.
func (cli *commandLine) login(ctx context.Context) (moodle.Session, error) {
	mc := &cli.conf.Moodle
	mc.BaseURL = core.CleanString(mc.BaseURL)
	mc.Username = core.CleanString(mc.Username)
	if err := cli.conf.Validate(); err != nil {
		return moodle.Session{}, err
	}

	if mc.Password == "" {
		fd := int(os.Stdin.Fd())
		if !isTerminalFunc(fd) {
			return moodle.Session{}, core.NewArgumentError("password is required (-password or $MOODLE_PASSWORD)")
		}
		fmt.Fprintf(cli.out, "Password for %s:", mc.Username)
		pwd, err := readPasswordFunc(fd)
		fmt.Fprintln(cli.out)
		if err != nil {
			return moodle.Session{}, pkgerrors.Wrap(err, "reading password")
		}
		if len(pwd) == 0 {
			return moodle.Session{}, core.NewArgumentError("password is required")
		}
		mc.Password = string(pwd)
	}

	return cli.client.Authenticate(ctx, mc.BaseURL, mc.Username, mc.Password)
}

// isUserError reports whether err is due to user input or server data (as opposed to a failure
// worth reporting).
func isUserError(err error) bool {
	if err == errHelp || core.IsValidationError(err) || moodle.IsAuthenticationError(err) {
		return true
	}
	var argErr *core.ArgumentError
	if pkgerrors.As(err, &argErr) {
		return true
	}
	for _, kind := range []moodle.EntityKind{moodle.KindCourse, moodle.KindAssignment, moodle.KindUser} {
		if moodle.IsNotFound(err, kind) {
			return true
		}
	}
	return false
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/coachline/testdesk/internal/client"
	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/grading"
	"github.com/coachline/testdesk/internal/logging"
	"github.com/coachline/testdesk/internal/session"
)

func main() {
	flagBaseURL := pflag.String("base-url", "http://localhost:8080", "address of the testdesk API")
	flagToken := pflag.String("token", "", "bearer token (skips login)")
	flagUser := pflag.String("user", "", "username to log in with")
	flagPassword := pflag.String("password", "", "password to log in with")
	flagExam := pflag.Int64("exam", 0, "id of the exam to take")
	flagAutosave := pflag.Duration("autosave", session.DefaultAutosaveInterval, "interval between full autosaves")
	flagReview := pflag.Bool("review", true, "show correct options after submitting")
	flagVerbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	level := slog.LevelWarn
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, "console", level)

	if *flagExam == 0 {
		fmt.Fprintln(os.Stderr, "--exam is required")
		pflag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(client.Config{BaseURL: *flagBaseURL, Token: *flagToken})
	studentID, err := identify(ctx, c, *flagToken, *flagUser, *flagPassword)
	if err != nil {
		logger.Error("sign in failed", "err", err)
		os.Exit(1)
	}

	s := session.New(c, studentID, *flagExam,
		session.WithAutosaveInterval(*flagAutosave),
		session.WithLogger(logger),
	)
	if err := s.Start(ctx); err != nil {
		logger.Error("could not start exam", "err", err)
		os.Exit(1)
	}
	printPaper(os.Stdout, s)

	if err := run(ctx, s, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("attempt ended", "err", err)
		os.Exit(1)
	}
	sum, ok := s.Summary()
	if !ok {
		return
	}
	printSummary(os.Stdout, sum)
	if *flagReview {
		rev, err := c.Review(ctx, *flagExam)
		if err != nil {
			logger.Error("could not load result", "err", err)
			os.Exit(1)
		}
		printReview(os.Stdout, rev)
	}
}

// identify logs in when credentials are given, otherwise reads the subject
// from the token. The server verifies the token on every call.
func identify(ctx context.Context, c *client.Client, token, user, password string) (string, error) {
	if user != "" {
		return c.Login(ctx, user, password)
	}
	if token == "" {
		return "", errors.New("either --token or --user is required")
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// run drives the session timer and the command loop until the attempt is submitted.
func run(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-s.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					// input closed: hand in what we have
					return handIn(gctx, s)
				}
				if err := handle(gctx, s, line, out); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) && s.State() == session.Submitted {
		return nil
	}
	return err
}

const handInRetry = 200 * time.Millisecond

// handIn submits the attempt. When a submit is already running (the timer
// fired) it waits for that one, and tries again if it fails.
func handIn(ctx context.Context, s *session.Session) error {
	for {
		_, err := s.Submit(ctx)
		switch {
		case err == nil, errors.Is(err, session.ErrAlreadySubmitted):
			return nil
		case !errors.Is(err, session.ErrSubmitInFlight):
			return err
		}
		select {
		case <-s.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(handInRetry):
		}
	}
}

type command struct {
	kind     string // answer|save|submit|time
	number   int
	selected *exam.Option
}

func parseCommand(line string) (command, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return command{}, errors.New("empty command")
	}
	switch strings.ToLower(f[0]) {
	case "save", "submit", "time":
		return command{kind: strings.ToLower(f[0])}, nil
	}
	if len(f) != 2 {
		return command{}, fmt.Errorf("unknown command %q", line)
	}
	n, err := strconv.Atoi(f[0])
	if err != nil || n < 1 {
		return command{}, fmt.Errorf("bad question number %q", f[0])
	}
	opt, ok := exam.ParseOption(strings.ToUpper(f[1]))
	if !ok {
		return command{}, fmt.Errorf("bad option %q, want A-D or -", f[1])
	}
	return command{kind: "answer", number: n, selected: opt}, nil
}

func handle(ctx context.Context, s *session.Session, line string, out io.Writer) error {
	cmd, err := parseCommand(line)
	if err != nil {
		return err
	}
	switch cmd.kind {
	case "time":
		fmt.Fprintf(out, "time left: %s\n", s.Remaining(time.Now()).Truncate(time.Second))
	case "save":
		if err := s.AutosaveNow(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "saved")
	case "submit":
		if _, err := s.Submit(ctx); err != nil {
			return err
		}
	case "answer":
		q, ok := questionByNumber(s.Paper(), cmd.number)
		if !ok {
			return fmt.Errorf("no question %d", cmd.number)
		}
		if err := s.Select(ctx, q.ID, cmd.selected); err != nil {
			if errors.Is(err, session.ErrAutosave) {
				fmt.Fprintln(out, "recorded locally, save failed; will retry")
				return nil
			}
			return err
		}
	}
	return nil
}

func questionByNumber(p exam.Paper, n int) (exam.Question, bool) {
	for _, q := range p.Questions {
		if q.Number == n {
			return q, true
		}
	}
	return exam.Question{}, false
}

func printPaper(w io.Writer, s *session.Session) {
	p := s.Paper()
	selected := make(map[int64]*exam.Option, len(p.Questions))
	for _, a := range s.Answers() {
		selected[a.QuestionID] = a.Selected
	}
	fmt.Fprintf(w, "%s (%d questions, %d minutes)\n\n", p.Exam.Name, len(p.Questions), p.Exam.DurationMinutes)
	for _, q := range p.Questions {
		mark := "-"
		if sel := selected[q.ID]; sel != nil {
			mark = string(*sel)
		}
		fmt.Fprintf(w, "%d. [%s] %s\n", q.Number, mark, q.Text)
		for _, o := range exam.Options {
			fmt.Fprintf(w, "   %s) %s\n", o, q.OptionText(o))
		}
	}
	fmt.Fprintln(w, "\ncommands: <n> <A-D|->, save, submit, time")
}

func printSummary(w io.Writer, sum grading.Summary) {
	fmt.Fprintf(w, "\nscore %d/%d  correct %d  wrong %d  unanswered %d  time %d min\n",
		sum.Score, sum.TotalQuestions, sum.Correct, sum.Wrong, sum.Unanswered, sum.TimeTakenMinutes)
}

// printReview lists each question with the student's choice and the correct option.
func printReview(w io.Writer, rev exam.Review) {
	fmt.Fprintln(w)
	for _, it := range rev.Items {
		mine := "-"
		if it.Response != nil && it.Response.Selected != nil {
			mine = string(*it.Response.Selected)
		}
		verdict := "unanswered"
		switch {
		case mine == "-":
		case exam.Option(mine) == it.Question.Correct:
			verdict = "correct"
		default:
			verdict = "wrong"
		}
		fmt.Fprintf(w, "%d. yours %s  answer %s  %s\n", it.Question.Number, mine, it.Question.Correct, verdict)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"

	"github.com/noah-isme/uw-schedule-builder/internal/dto"
	"github.com/noah-isme/uw-schedule-builder/internal/models"
	"github.com/noah-isme/uw-schedule-builder/internal/scheduler"
	"github.com/noah-isme/uw-schedule-builder/internal/service"
	"github.com/noah-isme/uw-schedule-builder/internal/sessioncsv"
	"github.com/noah-isme/uw-schedule-builder/pkg/config"
	"github.com/noah-isme/uw-schedule-builder/pkg/uwaterloo"
)

var (
	termFlag   = cli.StringFlag{Name: "term, t", Usage: "four digit term code, e.g. 1261"}
	courseFlag = cli.StringSliceFlag{Name: "course, c", Usage: `course code, repeatable, e.g. -c "MATH 135"`}
)

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "schedule-cli"
	app.Usage = "build conflict-free UW timetables from the terminal"
	app.UsageText = "schedule-cli <command> [arguments...]"
	app.Writer = out
	app.Commands = []cli.Command{
		{
			Name:    "generate",
			Aliases: []string{"g"},
			Usage:   "list every conflict-free schedule",
			Description: "Reads sessions from --sessions (offline) or fetches --course for --term from the Open Data API, " +
				"then prints every combination without overlapping meetings.",
			Action: generate,
			Flags: []cli.Flag{
				termFlag,
				courseFlag,
				cli.StringFlag{Name: "sessions, s", Usage: "CSV file of sessions to use instead of the API"},
				cli.StringFlag{Name: "exam-policy", Value: string(scheduler.ExamPolicyFirst), Usage: "FIRST or DISTINCT"},
				cli.IntFlag{Name: "max-results", Value: 50, Usage: "stop after this many schedules (0 for all)"},
				cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "overall time budget"},
				cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
			},
		},
		{
			Name:   "fetch",
			Usage:  "download course sessions as CSV for offline use",
			Action: fetch,
			Flags: []cli.Flag{
				termFlag,
				courseFlag,
				cli.StringFlag{Name: "output, o", Usage: "file to write, stdout when empty"},
			},
		},
		{
			Name:   "exam",
			Usage:  "show the published exam row of a course",
			Action: exam,
			Flags:  []cli.Flag{termFlag, courseFlag},
		},
		{
			Name:   "check-key",
			Usage:  "verify that UW_API_KEY is accepted",
			Action: checkKey,
			Flags:  []cli.Flag{termFlag},
		},
	}
	return app
}

type upstream struct {
	client  *uwaterloo.Client
	scraper *uwaterloo.ExamScraper
	cfg     *config.Config
}

func newUpstream() (*upstream, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	limiter := uwaterloo.NewLimiter(cfg.UWAPI.RatePerSecond, cfg.UWAPI.Burst)
	return &upstream{
		client: uwaterloo.NewClient(uwaterloo.ClientConfig{
			BaseURL: cfg.UWAPI.BaseURL,
			APIKey:  cfg.UWAPI.APIKey,
			Timeout: cfg.UWAPI.Timeout,
			Limiter: limiter,
		}),
		scraper: uwaterloo.NewExamScraper(uwaterloo.ExamScraperConfig{
			URLTemplate: cfg.UWAPI.ExamURLTemplate,
			Timeout:     cfg.UWAPI.Timeout,
			Limiter:     limiter,
		}),
		cfg: cfg,
	}, nil
}

func requireTerm(c *cli.Context) (string, error) {
	term := strings.TrimSpace(c.String("term"))
	if term == "" {
		return "", cli.NewExitError("--term is required", 2)
	}
	return term, nil
}

func requireCourses(c *cli.Context, term string) ([]models.CourseKey, error) {
	raw := c.StringSlice("course")
	if len(raw) == 0 {
		return nil, cli.NewExitError("at least one --course is required", 2)
	}
	keys := make([]models.CourseKey, 0, len(raw))
	for _, code := range raw {
		key, err := service.ParseCourseCode(term, code)
		if err != nil {
			return nil, cli.NewExitError(err.Error(), 2)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func generate(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	var (
		resp *dto.GenerateSchedulesResponse
		err  error
	)
	if path := c.String("sessions"); path != "" {
		resp, err = generateOffline(ctx, c, path)
	} else {
		resp, err = generateOnline(ctx, c)
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return printSchedules(c.App.Writer, resp)
}

func generateOffline(ctx context.Context, c *cli.Context, path string) (*dto.GenerateSchedulesResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	sessions, err := sessioncsv.Read(file)
	if err != nil {
		return nil, err
	}
	src := sessioncsv.NewSource(sessions)
	if len(src.Courses()) == 0 {
		return nil, cli.NewExitError(path+" has no sessions", 1)
	}

	term := strings.TrimSpace(c.String("term"))
	if term == "" {
		term = src.Courses()[0].TermCode
	}
	courses := c.StringSlice("course")
	if len(courses) == 0 {
		for _, key := range src.Courses() {
			if key.TermCode == term {
				courses = append(courses, key.SubjectCode+" "+key.CatalogNumber)
			}
		}
	}

	policy := scheduler.ParseExamPolicy(c.String("exam-policy"))
	builder := service.NewScheduleBuilderService(src, scheduler.NewGrouper(nil, policy, zap.NewNop()),
		service.ScheduleBuilderDeps{}, nil, zap.NewNop(), service.ScheduleBuilderConfig{
			MaxResults: c.Int("max-results"),
			ExamPolicy: policy,
		})
	return builder.Generate(ctx, dto.GenerateSchedulesRequest{TermCode: term, Courses: courses})
}

func generateOnline(ctx context.Context, c *cli.Context) (*dto.GenerateSchedulesResponse, error) {
	term, err := requireTerm(c)
	if err != nil {
		return nil, err
	}
	if len(c.StringSlice("course")) == 0 {
		return nil, cli.NewExitError("at least one --course or --sessions is required", 2)
	}
	up, err := newUpstream()
	if err != nil {
		return nil, err
	}
	resolver := scheduler.NewExamDateResolver(up.scraper, scheduler.ParseDateOrder(up.cfg.UWAPI.ExamDateOrder))
	policy := scheduler.ParseExamPolicy(c.String("exam-policy"))
	builder := service.NewScheduleBuilderService(up.client, scheduler.NewGrouper(resolver, policy, zap.NewNop()),
		service.ScheduleBuilderDeps{}, nil, zap.NewNop(), service.ScheduleBuilderConfig{
			FetchConcurrency: up.cfg.Scheduler.FetchConcurrency,
			MaxExploredNodes: up.cfg.Scheduler.MaxExploredNodes,
			MaxResults:       c.Int("max-results"),
			ExamPolicy:       policy,
		})
	return builder.Generate(ctx, dto.GenerateSchedulesRequest{
		TermCode: term,
		Courses:  c.StringSlice("course"),
	})
}

func printSchedules(w io.Writer, resp *dto.GenerateSchedulesResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, course := range resp.Courses {
		if !course.Success {
			fmt.Fprintf(tw, "! %s: %s\n", course.Course, course.Error)
		}
	}
	for _, warning := range resp.Warnings {
		fmt.Fprintf(tw, "! %s: %s\n", warning.Kind, warning.Message)
	}
	for i, schedule := range resp.Schedules {
		fmt.Fprintf(tw, "\nSchedule %d\n", i+1)
		for _, v := range schedule {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n", v.Course(), v.Section, v.ClassNumber, v.Days, v.TimeRange, v.Enrollment.Text)
		}
	}
	summary := fmt.Sprintf("\n%d schedule(s), %d nodes explored", resp.ScheduleCount, resp.Explored)
	if resp.Truncated {
		summary += ", search stopped early"
	}
	fmt.Fprintln(tw, summary)
	return tw.Flush()
}

func fetch(c *cli.Context) error {
	term, err := requireTerm(c)
	if err != nil {
		return err
	}
	courses, err := requireCourses(c, term)
	if err != nil {
		return err
	}
	up, err := newUpstream()
	if err != nil {
		return err
	}

	ctx := context.Background()
	progress := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	bar := progress.AddBar(int64(len(courses)),
		mpb.PrependDecorators(decor.Name("courses", decor.WC{W: 8, C: decor.DindentRight})),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	var all []models.Session
	for _, course := range courses {
		sessions, err := up.client.ClassSchedules(ctx, course)
		if err != nil {
			bar.Abort(false)
			progress.Wait()
			return fmt.Errorf("fetch %s: %w", course, err)
		}
		all = append(all, sessions...)
		bar.Increment()
	}
	progress.Wait()

	out := c.App.Writer
	if path := c.String("output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	return sessioncsv.Write(out, all)
}

func exam(c *cli.Context) error {
	term, err := requireTerm(c)
	if err != nil {
		return err
	}
	courses, err := requireCourses(c, term)
	if err != nil {
		return err
	}
	up, err := newUpstream()
	if err != nil {
		return err
	}
	for _, course := range courses {
		row, err := up.scraper.ExamRow(context.Background(), course)
		if err != nil {
			fmt.Fprintf(c.App.Writer, "%s: %v\n", course, err)
			continue
		}
		date, dateErr := scheduler.NormalizeExamDate(row.Date, term, scheduler.ParseDateOrder(up.cfg.UWAPI.ExamDateOrder))
		resolved := "unresolved"
		if dateErr == nil {
			resolved = date.String()
		}
		fmt.Fprintf(c.App.Writer, "%s: %s class %s on %q (%s)\n", course, row.Section, row.ClassNumber, row.Date, resolved)
	}
	return nil
}

func checkKey(c *cli.Context) error {
	term, err := requireTerm(c)
	if err != nil {
		return err
	}
	up, err := newUpstream()
	if err != nil {
		return err
	}
	if up.cfg.UWAPI.APIKey == "" {
		return cli.NewExitError("UW_API_KEY is not set", 1)
	}
	if err := up.client.CheckAPIKey(context.Background(), term); err != nil {
		if errors.Is(err, uwaterloo.ErrUnauthorized) {
			return cli.NewExitError("API key rejected", 1)
		}
		return err
	}
	fmt.Fprintln(c.App.Writer, "API key accepted")
	return nil
}

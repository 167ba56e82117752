package uwaterloo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
	"github.com/noah-isme/uw-schedule-builder/internal/scheduler"
)

const (
	sourceExamPage = "exam_page"
	// dateColumn is the position of the Date cell in a full schedule-of-classes row.
	dateColumn   = 9
	fullRowCells = 13
	userAgent    = "Mozilla/5.0 (compatible; uw-schedule-builder)"
)

var (
	examSectionPattern = regexp.MustCompile(`^TST\s*\d+`)
	examDatePattern    = regexp.MustCompile(`\d{1,2}/\d{1,2}(?:-\d{1,2}/\d{1,2})?`)
)

// ExamRow is the schedule-of-classes row of a course's exam section.
type ExamRow struct {
	ClassNumber string   `json:"classNumber"`
	Section     string   `json:"section"`
	Date        string   `json:"date"`
	Cells       []string `json:"cells"`
}

// ExamScraperConfig configures the exam date scraper.
type ExamScraperConfig struct {
	// URLTemplate has three %s verbs: term, subject, catalog number.
	URLTemplate string
	Timeout     time.Duration
	Limiter     *rate.Limiter
	HTTPClient  *http.Client
	Observer    Observer
}

// ExamScraper reads exam dates from the public schedule-of-classes page.
type ExamScraper struct {
	urlTemplate string
	httpClient  *http.Client
	limiter     *rate.Limiter
	observer    Observer
}

// NewExamScraper constructs a scraper.
func NewExamScraper(cfg ExamScraperConfig) *ExamScraper {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &ExamScraper{urlTemplate: cfg.URLTemplate, httpClient: httpClient, limiter: limiter, observer: cfg.Observer}
}

// LookupExamDate returns the raw date text of the course's exam row, e.g. "02/09-02/09".
func (s *ExamScraper) LookupExamDate(ctx context.Context, course models.CourseKey) (string, error) {
	row, err := s.ExamRow(ctx, course)
	if err != nil {
		return "", err
	}
	if row.Date == "" {
		return "", fmt.Errorf("%s: exam row has no date: %w", course, scheduler.ErrExamDateNotFound)
	}
	return row.Date, nil
}

// ExamRow fetches the schedule page and returns the first exam section row.
func (s *ExamScraper) ExamRow(ctx context.Context, course models.CourseKey) (ExamRow, error) {
	if s.urlTemplate == "" {
		return ExamRow{}, fmt.Errorf("%w: exam url template not configured", ErrUpstream)
	}
	endpoint := fmt.Sprintf(s.urlTemplate,
		url.QueryEscape(course.TermCode), url.QueryEscape(course.SubjectCode), url.QueryEscape(course.CatalogNumber))

	start := time.Now()
	doc, err := s.fetch(ctx, endpoint)
	if s.observer != nil {
		s.observer.ObserveUpstream(sourceExamPage, err, time.Since(start))
	}
	if err != nil {
		return ExamRow{}, err
	}

	row, ok := findExamRow(doc)
	if !ok {
		return ExamRow{}, fmt.Errorf("%s: %w", course, scheduler.ErrExamDateNotFound)
	}
	return row, nil
}

func (s *ExamScraper) fetch(ctx context.Context, endpoint string) (*html.Node, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, scheduler.ErrExamDateNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: exam page status %d", ErrUpstream, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parse exam page: %v", ErrUpstream, err)
	}
	return doc, nil
}

// findExamRow walks every table row in document order and returns the first whose cells
// contain an exam section label.
func findExamRow(doc *html.Node) (ExamRow, bool) {
	var (
		found ExamRow
		ok    bool
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if ok {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			if row, match := examRowFrom(rowCells(n)); match {
				found, ok = row, true
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return found, ok
}

func examRowFrom(cells []string) (ExamRow, bool) {
	sectionIdx := -1
	for i, cell := range cells {
		if examSectionPattern.MatchString(cell) {
			sectionIdx = i
			break
		}
	}
	if sectionIdx < 0 {
		return ExamRow{}, false
	}

	row := ExamRow{Section: cells[sectionIdx], Cells: cells}
	if sectionIdx > 0 {
		row.ClassNumber = cells[sectionIdx-1]
	}
	if len(cells) >= fullRowCells && examDatePattern.MatchString(cells[dateColumn]) {
		row.Date = examDatePattern.FindString(cells[dateColumn])
		return row, true
	}
	for _, cell := range cells[sectionIdx+1:] {
		if date := examDatePattern.FindString(cell); date != "" {
			row.Date = date
			break
		}
	}
	return row, true
}

// rowCells returns the trimmed text of the direct td/th children of a row.
func rowCells(tr *html.Node) []string {
	var cells []string
	for child := tr.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || (child.DataAtom != atom.Td && child.DataAtom != atom.Th) {
			continue
		}
		cells = append(cells, strings.Join(strings.Fields(textOf(child)), " "))
	}
	return cells
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			// nested tables are visited as rows of their own.
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return b.String()
}

// IsNotFound reports whether err means the course or its exam does not exist upstream.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCourseNotFound) || errors.Is(err, scheduler.ErrExamDateNotFound)
}

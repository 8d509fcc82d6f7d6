package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/domain/patient"
	"github.com/stlaurent/renewal-engine/internal/observability/metrics"
	"github.com/stlaurent/renewal-engine/internal/service"
	"github.com/stlaurent/renewal-engine/pkg/idempotency"
	"github.com/stlaurent/renewal-engine/pkg/workerpool"
)

// Outcome classifies what happened to one imported row.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeAlreadyImported  Outcome = "already_imported"
	OutcomeError            Outcome = "error"
)

// RowResult is the per-row outcome of an import run.
type RowResult struct {
	Line    int     `json:"line"`
	Subject string  `json:"subject"`
	Outcome Outcome `json:"outcome"`
	CycleID string  `json:"cycle_id,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Report summarizes an import run.
type Report struct {
	Created         int         `json:"created"`
	SkippedDup      int         `json:"skipped_duplicate"`
	AlreadyImported int         `json:"already_imported"`
	Errors          int         `json:"errors"`
	Rows            []RowResult `json:"rows"`
}

// Engine is the slice of the service layer the importer drives.
type Engine interface {
	CreateCycle(ctx context.Context, req service.CreateCycleRequest) (*service.CreateCycleResult, error)
	RegisterPatient(ctx context.Context, req service.RegisterPatientRequest) (*patient.Patient, error)
	FindPatientByName(ctx context.Context, lastName, firstName string) (*patient.Patient, error)
}

// Deduper guards against re-importing rows across runs.
type Deduper interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// Config holds importer configuration.
type Config struct {
	// Workers is the parallelism of row processing
	Workers int
	// ImportedBy is recorded as the creator of imported cycles
	ImportedBy string
}

// DefaultConfig returns importer defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		ImportedBy: "calendar-import",
	}
}

// Importer translates calendar CSV exports into cycles.
type Importer struct {
	engine  Engine
	dedup   Deduper
	config  Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates an importer. dedup and m may be nil; without a deduper every
// row is processed and only the cycle duplicate guard protects re-runs.
func New(engine Engine, dedup Deduper, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.ImportedBy == "" {
		cfg.ImportedBy = DefaultConfig().ImportedBy
	}
	return &Importer{engine: engine, dedup: dedup, config: cfg, metrics: m, logger: logger}
}

// row is one parsed calendar event.
type row struct {
	Line        int       `json:"line"`
	LastName    string    `json:"last_name"`
	FirstName   string    `json:"first_name"`
	Phone       string    `json:"phone,omitempty"`
	Start       time.Time `json:"start"`
	Description string    `json:"description,omitempty"`
	Recurrence  string    `json:"recurrence,omitempty"`
}

// phoneRe matches French numbers as they appear free-form in event
// descriptions.
var phoneRe = regexp.MustCompile(`(?:\+33|0)[1-9](?:[.\s-]?\d{2}){4}`)

var dateLayouts = []string{"02/01/2006", "2006-01-02", "01/02/2006 03:04 PM"}

// Import reads a CSV export and creates a cycle per event, deduplicating
// across runs. Row failures are collected in the report; only unreadable
// input aborts the run.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	rows, parseErrors, err := parseCSV(r)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, pe := range parseErrors {
		report.Rows = append(report.Rows, pe)
		report.Errors++
	}

	pool, err := workerpool.New(workerpool.Config{
		Workers:   im.config.Workers,
		QueueSize: len(rows) + 1,
		// Retrying a failed row would re-run patient creation; rows are
		// cheap to re-import by hand instead.
		MaxRetries: 0,
	}, im.processTask, im.logger)
	if err != nil {
		return nil, err
	}
	pool.Start()

	for i := range rows {
		task := &workerpool.Task{
			ID:      fmt.Sprintf("row-%d", rows[i].Line),
			Payload: &rows[i],
			Context: ctx,
		}
		if err := pool.Submit(task); err != nil {
			report.Rows = append(report.Rows, RowResult{
				Line:    rows[i].Line,
				Outcome: OutcomeError,
				Error:   err.Error(),
			})
			report.Errors++
		}
	}

	pool.Stop()
	for result := range pool.Results() {
		rr, ok := result.Data.(RowResult)
		if !ok {
			continue
		}
		report.Rows = append(report.Rows, rr)
		switch rr.Outcome {
		case OutcomeCreated:
			report.Created++
		case OutcomeSkippedDuplicate:
			report.SkippedDup++
		case OutcomeAlreadyImported:
			report.AlreadyImported++
		default:
			report.Errors++
		}
		if im.metrics != nil {
			im.metrics.ImportRowsProcessed.WithLabelValues(string(rr.Outcome)).Inc()
		}
	}

	im.logger.Info("import finished",
		zap.Int("created", report.Created),
		zap.Int("skipped_duplicate", report.SkippedDup),
		zap.Int("already_imported", report.AlreadyImported),
		zap.Int("errors", report.Errors))
	return report, nil
}

func (im *Importer) processTask(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	rw := task.Payload.(*row)
	rr := im.processRow(ctx, rw)
	return &workerpool.Result{
		TaskID:  task.ID,
		Success: true, // row-level failures are data, not task failures
		Data:    rr,
	}
}

func (im *Importer) processRow(ctx context.Context, rw *row) RowResult {
	rr := RowResult{Line: rw.Line, Subject: rw.LastName + " " + rw.FirstName}

	handle := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		result, err := im.createFromRow(ctx, rw)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}

	if im.dedup == nil {
		out, err := handle(ctx, nil)
		return im.finishRow(rr, out, err)
	}

	key := idempotency.RowKey(rw.LastName, rw.FirstName, rw.Start)
	payload, _ := json.Marshal(rw)
	procResult, err := im.dedup.Process(ctx, key, "calendar-import", payload, handle)
	if errors.Is(err, idempotency.ErrDuplicateRow) || errors.Is(err, idempotency.ErrRowInProgress) {
		rr.Outcome = OutcomeAlreadyImported
		return rr
	}
	if err != nil {
		rr.Outcome = OutcomeError
		rr.Error = err.Error()
		return rr
	}
	if !procResult.IsNew && !procResult.WasRecovered {
		rr.Outcome = OutcomeAlreadyImported
		return rr
	}
	return im.finishRow(rr, procResult.Result, nil)
}

func (im *Importer) finishRow(rr RowResult, out json.RawMessage, err error) RowResult {
	if err != nil {
		rr.Outcome = OutcomeError
		rr.Error = err.Error()
		return rr
	}
	var result RowResult
	if jsonErr := json.Unmarshal(out, &result); jsonErr != nil {
		rr.Outcome = OutcomeError
		rr.Error = jsonErr.Error()
		return rr
	}
	rr.Outcome = result.Outcome
	rr.CycleID = result.CycleID
	return rr
}

// createFromRow resolves the patient and creates the cycle. Only the outcome
// fields of the returned RowResult are meaningful; line and subject are
// filled by the caller.
func (im *Importer) createFromRow(ctx context.Context, rw *row) (RowResult, error) {
	p, err := im.engine.FindPatientByName(ctx, rw.LastName, rw.FirstName)
	if errors.Is(err, patient.ErrNotFound) {
		if rw.Phone == "" {
			return RowResult{}, fmt.Errorf("unknown patient %s %s and no phone in event", rw.LastName, rw.FirstName)
		}
		p, err = im.engine.RegisterPatient(ctx, service.RegisterPatientRequest{
			LastName:  rw.LastName,
			FirstName: rw.FirstName,
			Phone:     rw.Phone,
			Consent:   false, // consent is collected in person, never assumed
			Notes:     "imported from calendar",
		})
	}
	if err != nil {
		return RowResult{}, err
	}

	recText := rw.Recurrence
	if recText == "" {
		recText = rw.Description
	}
	rec := ParseRecurrence(recText, rw.Start)
	created, err := im.engine.CreateCycle(ctx, service.CreateCycleRequest{
		PatientID:     p.ID,
		FirstDelivery: rw.Start,
		RenewalCount:  rec.RenewalCount,
		IntervalDays:  rec.IntervalDays,
		CreatedBy:     im.config.ImportedBy,
	})
	if err != nil {
		return RowResult{}, err
	}
	if created.Skipped {
		return RowResult{Outcome: OutcomeSkippedDuplicate}, nil
	}
	return RowResult{Outcome: OutcomeCreated, CycleID: created.Cycle.ID}, nil
}

// parseCSV reads the export into rows. Header names follow the Google
// Calendar CSV format: Subject, Start Date, Description.
func parseCSV(r io.Reader) ([]row, []RowResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	subjectIdx, ok := cols["subject"]
	if !ok {
		return nil, nil, fmt.Errorf("missing Subject column")
	}
	startIdx, ok := cols["start date"]
	if !ok {
		return nil, nil, fmt.Errorf("missing Start Date column")
	}
	descIdx, hasDesc := cols["description"]
	// Google exports name the column "Recurrence Pattern"; older dumps used
	// plain "recurrence".
	recIdx, hasRec := cols["recurrence pattern"]
	if !hasRec {
		recIdx, hasRec = cols["recurrence"]
	}

	var rows []row
	var parseErrors []RowResult
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			parseErrors = append(parseErrors, RowResult{Line: line, Outcome: OutcomeError, Error: err.Error()})
			continue
		}
		if subjectIdx >= len(record) || startIdx >= len(record) {
			parseErrors = append(parseErrors, RowResult{Line: line, Outcome: OutcomeError, Error: "short record"})
			continue
		}

		last, first, nameErr := splitSubject(record[subjectIdx])
		if nameErr != nil {
			parseErrors = append(parseErrors, RowResult{Line: line, Subject: record[subjectIdx], Outcome: OutcomeError, Error: nameErr.Error()})
			continue
		}
		start, dateErr := parseDate(record[startIdx])
		if dateErr != nil {
			parseErrors = append(parseErrors, RowResult{Line: line, Subject: record[subjectIdx], Outcome: OutcomeError, Error: dateErr.Error()})
			continue
		}

		rw := row{Line: line, LastName: last, FirstName: first, Start: start}
		if hasDesc && descIdx < len(record) {
			rw.Description = record[descIdx]
			rw.Phone = phoneRe.FindString(record[descIdx])
		}
		if hasRec && recIdx < len(record) {
			rw.Recurrence = strings.TrimSpace(record[recIdx])
		}
		rows = append(rows, rw)
	}
	return rows, parseErrors, nil
}

// splitSubject splits an event subject into last and first name. Events are
// titled "DUPONT Marie": the first name is the final word, everything before
// it is the last name, compound surnames included.
func splitSubject(subject string) (last, first string, err error) {
	words := strings.Fields(strings.TrimSpace(subject))
	if len(words) < 2 {
		return "", "", fmt.Errorf("subject %q does not look like a patient name", subject)
	}
	first = words[len(words)-1]
	last = strings.Join(words[:len(words)-1], " ")
	return last, first, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Package importer maps spreadsheet rows to CRM records and writes them in
// dependency order.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crm-cli/internal/config"
	"github.com/sells-group/crm-cli/internal/model"
	"github.com/sells-group/crm-cli/internal/sheet"
	"github.com/sells-group/crm-cli/internal/stage"
	"github.com/sells-group/crm-cli/internal/store"
)

// Default run limits.
const (
	DefaultChunkSize = 200
	DefaultMaxRows   = 5000
)

// ErrPipelineNotFound is returned when the requested pipeline does not exist.
var ErrPipelineNotFound = errors.New("pipeline not found")

// Options tunes an Importer.
type Options struct {
	HeaderScanRows  int
	ChunkSize       int
	MaxRows         int
	ChunksPerSecond float64 // 0 disables pacing between chunks
	Transactional   bool    // wrap each batch in one transaction when the store supports it
}

// OptionsFromConfig converts the import config section.
func OptionsFromConfig(c config.ImportConfig) Options {
	return Options{
		HeaderScanRows:  c.HeaderScanRows,
		ChunkSize:       c.ChunkSize,
		MaxRows:         c.MaxRows,
		ChunksPerSecond: c.ChunksPerSecond,
		Transactional:   c.Transactional,
	}
}

// Request describes one import run.
type Request struct {
	PipelineID int64
	// Chunked processes rows in ChunkSize batches and records chunk failures
	// instead of ending the run.
	Chunked bool
	// RequireCompany skips rows without a company name.
	RequireCompany bool
}

// Result is the outcome of a run. Summary counts are what the store
// committed.
type Result struct {
	RunID uuid.UUID `json:"runId"`
	State State     `json:"state"`
	Summary
	RowsParsed  int      `json:"rowsParsed"`
	RowsSkipped int      `json:"rowsSkipped"`
	Errors      []string `json:"errors,omitempty"`
}

// Importer runs spreadsheet imports against a store.
type Importer struct {
	store store.Store
	table *stage.Table
	opts  Options
}

// New creates an Importer. A nil table uses the built-in stage table.
func New(s store.Store, table *stage.Table, opts Options) *Importer {
	if table == nil {
		table = stage.DefaultTable()
	}
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = sheet.DefaultScanRows
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	return &Importer{store: s, table: table, opts: opts}
}

// Run imports ws into the pipeline named by req. An error is returned when
// the pipeline is missing, the store cannot be read, or (outside chunked
// mode) a write step fails; in the last case the Result still carries the
// counts of the steps that committed.
func (im *Importer) Run(ctx context.Context, ws *sheet.Worksheet, req Request) (*Result, error) {
	res := &Result{RunID: uuid.New(), State: StateIdle}
	log := zap.L().With(
		zap.String("component", "importer"),
		zap.String("run_id", res.RunID.String()),
		zap.Int64("pipeline_id", req.PipelineID),
	)

	pipeline, err := im.store.GetPipeline(ctx, req.PipelineID)
	if err != nil {
		return res, eris.Wrap(err, "importer: load pipeline")
	}
	if pipeline == nil {
		return res, eris.Wrapf(ErrPipelineNotFound, "importer: pipeline %d", req.PipelineID)
	}

	m := newMachine(log)
	defer func() { res.State = m.state }()

	m.to(StateParsingHeader)
	header, ok := sheet.DetectHeader(ws, im.opts.HeaderScanRows)
	if !ok {
		log.Info("no header row found, nothing to import")
		m.to(StateDone)
		return res, nil
	}
	log.Debug("header detected", zap.Int("row", header.Row+1), zap.Int("score", header.Score))

	m.to(StateParsingRows)
	rows := im.parseRows(ws, header, req, res)
	if len(rows) == 0 {
		log.Info("no rows to import")
		m.to(StateDone)
		return res, nil
	}

	if req.Chunked && len(rows) > im.opts.MaxRows {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"%d rows exceed the %d row limit and were not imported", len(rows)-im.opts.MaxRows, im.opts.MaxRows))
		rows = rows[:im.opts.MaxRows]
	}

	rec := NewReconciler(log)
	if err := rec.Seed(ctx, im.store); err != nil {
		m.to(StateFailed)
		return res, err
	}
	w := &Writer{rec: rec, m: m, log: log}

	chunkSize := len(rows)
	var limiter *rate.Limiter
	if req.Chunked {
		chunkSize = im.opts.ChunkSize
		if im.opts.ChunksPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(im.opts.ChunksPerSecond), 1)
		}
	}

	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("import stopped before row %d: %v", rows[start].Line, err))
				break
			}
		}

		b := im.stage(rec, rows[start:end], pipeline)
		sum, err := im.write(ctx, w, b)
		res.Summary.Add(sum)
		if err == nil {
			if req.Chunked {
				for _, line := range b.SkippedNotes {
					res.Errors = append(res.Errors, fmt.Sprintf("row %d: note not saved, deal id was not returned", line))
				}
			}
			continue
		}
		if !req.Chunked {
			log.Error("import failed", zap.Error(err))
			m.to(StateFailed)
			return res, err
		}
		log.Warn("chunk failed, continuing",
			zap.Int("first_line", rows[start].Line),
			zap.Int("last_line", rows[end-1].Line),
			zap.Error(err),
		)
		res.Errors = append(res.Errors, fmt.Sprintf("rows %d-%d: %v", rows[start].Line, rows[end-1].Line, err))
	}

	m.to(StateDone)
	log.Info("import complete",
		zap.Int("rows", res.RowsParsed),
		zap.Int("companies", res.CompaniesCreated),
		zap.Int("contacts", res.ContactsCreated),
		zap.Int("deals", res.DealsCreated),
		zap.Int("notes", res.NotesCreated),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// parseRows maps every row below the header. Rows failing validation are
// counted as skipped and recorded in res.Errors.
func (im *Importer) parseRows(ws *sheet.Worksheet, h *sheet.Header, req Request, res *Result) []Row {
	mapper := NewMapper(h)
	var rows []Row
	for i := h.Row + 1; i < len(ws.Rows); i++ {
		row, ok := mapper.Map(ws.Rows[i], i+1)
		if !ok {
			continue
		}
		if req.RequireCompany && row.CompanyName == "" {
			res.RowsSkipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing company name", row.Line))
			continue
		}
		rows = append(rows, row)
	}
	res.RowsParsed = len(rows)
	return rows
}

// stage turns rows into a Batch, registering new companies and contacts with
// the reconciler. A deal is staged when the row names a deal or a company;
// the deal name defaults to the company name.
func (im *Importer) stage(rec *Reconciler, rows []Row, p *model.Pipeline) *Batch {
	b := &Batch{}
	for _, row := range rows {
		company := rec.Company(b, row.CompanyName, row.Timezone)
		var contact Ref
		if row.HasContact() {
			contact = rec.Contact(b, row, company)
		}

		name := row.DealName
		if name == "" {
			name = row.CompanyName
		}
		if name == "" {
			continue
		}
		b.Deals = append(b.Deals, StagedDeal{
			Line: row.Line,
			Deal: model.Deal{
				Name:       name,
				PipelineID: p.ID,
				Stage:      im.table.Canonicalize(row.Stage, p.Stages),
				Timezone:   row.Timezone,
			},
			Company: company,
			Contact: contact,
			Note:    row.Notes,
		})
	}
	return b
}

// write runs the writer directly or, in transactional mode, inside one
// store transaction. A rolled back transaction commits nothing, so its
// summary is zero and the reconciler forgets the batch.
func (im *Importer) write(ctx context.Context, w *Writer, b *Batch) (Summary, error) {
	txs, ok := im.store.(store.TxStore)
	if !im.opts.Transactional || !ok {
		return w.Write(ctx, im.store, b)
	}

	snap := w.rec.snapshot()
	var sum Summary
	err := txs.WithTx(ctx, func(tx store.Store) error {
		var err error
		sum, err = w.Write(ctx, tx, b)
		return err
	})
	if err != nil {
		w.rec.restore(snap)
		w.rec.discardCompanies(b)
		w.rec.discardContacts(b)
		return Summary{}, err
	}
	return sum, nil
}

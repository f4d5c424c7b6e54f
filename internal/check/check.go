// Package check implements the referential integrity checker. A run opens
// one transaction, applies a fixed sequence of repair passes and returns a
// Report. The family passes repeat until a round makes no correction, since
// repairing one kind of family damage can expose another. Running the
// checker twice in a row makes no corrections the second time.
package check

import (
	"context"
	"fmt"
	"time"

	"grampscore/internal/blob"
	"grampscore/internal/core"
	"grampscore/pkg/domain"
)

// DefaultMaxFamilyRounds bounds the family fixed-point loop.
const DefaultMaxFamilyRounds = 32

// Pass is one repair step executed inside the checker's transaction.
type Pass interface {
	Name() string
	Run(ctx context.Context, s *Session) error
}

// CorrectionRecorder receives every correction of a committed run.
type CorrectionRecorder interface {
	RecordCorrection(kind Kind)
}

// MediaPolicy decides what happens to a media object whose file is missing.
type MediaPolicy int

const (
	// MediaKeep leaves the object and lists it in the report.
	MediaKeep MediaPolicy = iota
	// MediaRemove deletes the object; the reference pass then drops every
	// reference to it.
	MediaRemove
	// MediaReplace asks the Replacer for a new path and keeps the object
	// when none is offered.
	MediaReplace
)

// Replacer proposes a substitute path for a media object with a missing file.
type Replacer func(ctx context.Context, m *domain.Media) (path string, ok bool)

type options struct {
	logger      core.Logger
	metrics     core.MetricsRecorder
	recorder    CorrectionRecorder
	batch       bool
	maxRounds   int
	media       blob.Store
	policy      MediaPolicy
	replacer    Replacer
	concurrency int
	description string
}

// Option configures a Checker.
type Option func(*options)

// WithLogger overrides the database logger for checker output.
func WithLogger(l core.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder observes the duration of every pass as "check_<pass>".
func WithMetricsRecorder(m core.MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithCorrectionRecorder installs r.
func WithCorrectionRecorder(r CorrectionRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// Batch runs the checker in a batch transaction. The run cannot be undone
// and clears the undo history.
func Batch() Option {
	return func(o *options) { o.batch = true }
}

// WithMaxFamilyRounds caps the family fixed-point loop.
func WithMaxFamilyRounds(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithMediaStore enables the media file existence pass against store.
func WithMediaStore(store blob.Store, policy MediaPolicy) Option {
	return func(o *options) {
		o.media = store
		o.policy = policy
	}
}

// WithReplacer sets the callback used by MediaReplace.
func WithReplacer(r Replacer) Option {
	return func(o *options) { o.replacer = r }
}

// WithMediaConcurrency bounds parallel file probes.
func WithMediaConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithDescription labels the checker's transaction in the undo history.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// Checker runs the repair passes against a database.
type Checker struct {
	db     *core.Database
	opts   options
	passes []Pass
}

// New returns a checker with the standard passes registered.
func New(db *core.Database, opts ...Option) *Checker {
	o := options{
		logger:      db.Logger(),
		maxRounds:   DefaultMaxFamilyRounds,
		concurrency: 8,
		description: "Check Integrity",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	c := &Checker{db: db, opts: o}
	c.Register(
		familyLoop{passes: []Pass{familyLinks{}, parentGenders{}, emptyFamilies{}, duplicateSpouses{}}},
		eventRefs{},
		placeRefs{},
	)
	if o.media != nil {
		c.Register(mediaFiles{})
	}
	c.Register(objectRefs{}, duplicateIDs{}, ancestorLoops{})
	return c
}

// Register appends passes to the run order.
func (c *Checker) Register(passes ...Pass) {
	c.passes = append(c.passes, passes...)
}

// Passes returns the registered pass names in run order.
func (c *Checker) Passes() []string {
	names := make([]string, 0, len(c.passes))
	for _, p := range c.passes {
		names = append(names, p.Name())
	}
	return names
}

// Run executes every pass in one transaction and commits the result. On
// error or cancellation the transaction is aborted and nothing is written.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	begin := c.db.Begin
	if c.opts.batch {
		begin = c.db.BeginBatch
	}
	tx, err := begin(ctx, c.opts.description)
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	s := &Session{tx: tx, opts: &c.opts, report: &Report{}}
	for _, p := range c.passes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.run(ctx, p); err != nil {
			return nil, fmt.Errorf("check %s: %w", p.Name(), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if c.opts.recorder != nil {
		for _, corr := range s.report.Corrections {
			c.opts.recorder.RecordCorrection(corr.Kind)
		}
	}
	c.opts.logger.Info("integrity check finished",
		"corrections", s.report.Total(),
		"ancestor_loops", len(s.report.AncestorLoops),
		"missing_media", len(s.report.MissingMedia),
		"family_rounds", s.report.FamilyRounds)
	return s.report, nil
}

// Session is the state shared by the passes of one run.
type Session struct {
	tx     *core.Txn
	opts   *options
	report *Report
}

// Tx returns the checker's transaction.
func (s *Session) Tx() *core.Txn { return s.tx }

// Report returns the report being built.
func (s *Session) Report() *Report { return s.report }

// Logger returns the checker logger.
func (s *Session) Logger() core.Logger { return s.opts.logger }

func (s *Session) run(ctx context.Context, p Pass) error {
	start := time.Now()
	before := s.report.Total()
	err := p.Run(ctx, s)
	res := PassResult{Name: p.Name(), Corrections: s.report.Total() - before, Duration: time.Since(start)}
	s.observe(ctx, res.Name, err, res.Duration)
	if err != nil {
		return err
	}
	if _, nested := p.(familyLoop); !nested {
		s.report.Passes = append(s.report.Passes, res)
	}
	if res.Corrections > 0 {
		s.opts.logger.Info("check pass made corrections", "pass", res.Name, "corrections", res.Corrections)
	} else {
		s.opts.logger.Debug("check pass clean", "pass", res.Name)
	}
	return nil
}

func (s *Session) observe(ctx context.Context, pass string, err error, d time.Duration) {
	if s.opts.metrics != nil {
		s.opts.metrics.Observe(ctx, "check_"+pass, err == nil, d)
	}
}

// Correct records a repair of obj.
func (s *Session) Correct(kind Kind, obj domain.Object, detail string) {
	base := obj.Core()
	s.report.add(Correction{
		Kind:     kind,
		Object:   domain.Ref{Kind: obj.EntityType(), Handle: base.Handle},
		GrampsID: base.GrampsID,
		Detail:   detail,
	})
	s.opts.logger.Debug("check correction", "kind", kind, "object", base.GrampsID, "detail", detail)
}

// Handles lists handles of kind as seen by the transaction.
func (s *Session) Handles(ctx context.Context, kind domain.EntityType) ([]string, error) {
	return s.tx.Handles(ctx, kind, false)
}

// Exists reports whether an object of kind is stored under handle.
func (s *Session) Exists(ctx context.Context, kind domain.EntityType, handle string) (bool, error) {
	if handle == "" {
		return false, nil
	}
	return s.tx.HasHandle(ctx, kind, handle)
}

// Save writes obj through the transaction.
func (s *Session) Save(ctx context.Context, obj domain.Object) error {
	return s.tx.Save(ctx, obj)
}

func (s *Session) person(ctx context.Context, handle string) (*domain.Person, error) {
	if handle == "" {
		return nil, nil
	}
	return domain.FromHandle[*domain.Person](ctx, s.tx, handle)
}

func (s *Session) family(ctx context.Context, handle string) (*domain.Family, error) {
	if handle == "" {
		return nil, nil
	}
	return domain.FromHandle[*domain.Family](ctx, s.tx, handle)
}

// each visits every object of kind, checking ctx between objects.
func (s *Session) each(ctx context.Context, kind domain.EntityType, fn func(domain.Object) error) error {
	handles, err := s.Handles(ctx, kind)
	if err != nil {
		return err
	}
	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj, err := s.tx.Object(ctx, kind, h)
		if err != nil {
			return err
		}
		if obj == nil {
			continue
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
	return nil
}

// Package service answers term generation, template listing, obsoletion and
// consistency requests for the configured ontologies.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"term-forge/internal/agent"
	"term-forge/internal/commit"
	"term-forge/internal/credentials"
	"term-forge/internal/generation"
	"term-forge/internal/obo"
	"term-forge/internal/ontology"
	"term-forge/internal/params"
	"term-forge/internal/reasoner"
	"term-forge/internal/taskmanager"
	"term-forge/internal/templatecache"
	"term-forge/internal/templates"
	"term-forge/internal/validation"
)

// Options wires a Service. Registry, Templates, Generator and Commits are
// required.
type Options struct {
	Registry    *taskmanager.Registry
	Templates   *templatecache.Cache
	Generator   *generation.Engine
	Commits     *commit.Engine
	Credentials credentials.Validator
	Reasoner    reasoner.Factory
	// Reviewer annotates uncommitted candidates; optional.
	Reviewer agent.Reviewer
	Logger   *slog.Logger
}

// Service composes the pipeline.
type Service struct {
	registry    *taskmanager.Registry
	templates   *templatecache.Cache
	generator   *generation.Engine
	commits     *commit.Engine
	credentials credentials.Validator
	reasoner    reasoner.Factory
	reviewer    agent.Reviewer
	logger      *slog.Logger
}

// New creates a service and invalidates cached templates whenever one of
// the registered ontologies is reloaded.
func New(opts Options) *Service {
	s := &Service{
		registry:    opts.Registry,
		templates:   opts.Templates,
		generator:   opts.Generator,
		commits:     opts.Commits,
		credentials: opts.Credentials,
		reasoner:    opts.Reasoner,
		reviewer:    opts.Reviewer,
		logger:      opts.Logger,
	}
	if s.credentials == nil {
		s.credentials = credentials.AllowAll{}
	}
	if s.reasoner == nil {
		s.reasoner = reasoner.StructuralFactory{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, name := range s.registry.Names() {
		if m, err := s.registry.Get(name); err == nil {
			m.OnReload(s.templates.Invalidate)
		}
	}
	return s
}

// Input names a template and carries the raw values for its fields.
type Input struct {
	Template   string            `json:"template" yaml:"template"`
	Parameters params.Submission `json:"parameters" yaml:"parameters"`
}

// GenerateRequest asks for candidates, and optionally commits them.
type GenerateRequest struct {
	Ontology string  `json:"ontology" yaml:"ontology"`
	Inputs   []Input `json:"inputs" yaml:"inputs"`
	Commit   bool    `json:"commit" yaml:"commit"`
	Identity string  `json:"identity,omitempty" yaml:"identity,omitempty"`
	Secret   string  `json:"-" yaml:"-"`
}

// GenerateResponse carries the candidates with one message per candidate,
// the inputs that failed, and the commit result when a commit was requested.
type GenerateResponse struct {
	Candidates []generation.Output `json:"candidates"`
	Messages   []string            `json:"messages"`
	Errors     []*generation.Error `json:"errors,omitempty"`
	Reviews    []*agent.Review     `json:"reviews,omitempty"`
	Commit     *commit.Result      `json:"commit,omitempty"`
}

// GenerateTerms validates every input, generates candidates and, when
// requested, commits them as a single change set.
func (s *Service) GenerateTerms(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	switch {
	case req.Ontology == "":
		return nil, &InputError{Err: ErrNoOntology}
	case len(req.Inputs) == 0:
		return nil, &InputError{Err: ErrNoInputs}
	case req.Commit && req.Identity == "":
		return nil, &InputError{Err: ErrMissingIdentity}
	}
	manager, err := s.registry.Get(req.Ontology)
	if err != nil {
		return nil, &InputError{Err: err}
	}

	inputs, err := s.bindInputs(req)
	if err != nil {
		return nil, err
	}
	if req.Commit && !s.credentials.Validate(req.Identity, req.Secret) {
		s.logger.Warn("commit rejected: invalid credentials", "ontology", req.Ontology, "identity", req.Identity)
		return nil, &CredentialError{Identity: req.Identity}
	}
	if err := s.checkTerms(ctx, manager, req, inputs); err != nil {
		return nil, err
	}

	result, err := s.generator.GenerateTerms(ctx, manager, inputs)
	if err != nil {
		return nil, err
	}
	if len(result.Outputs) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoTermsGenerated, joinGenerationErrors(result.Errors))
	}
	resp := &GenerateResponse{Candidates: result.Outputs, Errors: result.Errors}

	if !req.Commit {
		resp.Messages = messages(resp.Candidates)
		resp.Reviews = s.review(ctx, resp.Candidates)
		return resp, nil
	}

	if reasons := blockers(result); len(reasons) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrCommitBlocked, strings.Join(reasons, "; "))
	}
	var cs *commit.ChangeSet
	err = manager.RunManagedTask(ctx, func(g *ontology.Graph) error {
		var err error
		cs, err = s.commits.PrepareAdditions(g, req.Identity, result.Outputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	res, err := s.commits.Commit(ctx, cs)
	if err != nil {
		return nil, err
	}
	s.applyCommitted(ctx, manager, cs, res)

	pending := 0
	for i := range resp.Candidates {
		if resp.Candidates[i].ID == "" {
			resp.Candidates[i].ID = res.AssignedIDs[fmt.Sprintf("%s%d", commit.PendingPrefix, pending)]
			pending++
		}
	}
	resp.Messages = messages(resp.Candidates)
	resp.Commit = res
	return resp, nil
}

// bindInputs looks up each template, validates all inputs, and binds them
// only when no input has a problem.
func (s *Service) bindInputs(req GenerateRequest) ([]generation.Input, error) {
	tmpls := make([]*templates.Template, len(req.Inputs))
	var problems []Problem
	for i, in := range req.Inputs {
		t, err := s.templates.Template(req.Ontology, in.Template)
		if err != nil {
			return nil, &InputError{Err: err}
		}
		tmpls[i] = t
		for _, verr := range validation.Validate(t, in.Parameters) {
			problems = append(problems, Problem{Input: i, Error: verr})
		}
	}
	if len(problems) > 0 {
		return nil, &InputError{Err: ErrValidation, Problems: problems}
	}

	inputs := make([]generation.Input, len(req.Inputs))
	for i, in := range req.Inputs {
		p, err := params.Bind(tmpls[i], in.Parameters)
		if err != nil {
			return nil, inputError("input %d: %w", i, err)
		}
		inputs[i] = generation.Input{Template: tmpls[i], Parameters: p}
	}
	return inputs, nil
}

// checkTerms validates the bound terms of every input against the current
// graph: membership in the graph or its imports, and field branches.
func (s *Service) checkTerms(ctx context.Context, m *taskmanager.Manager, req GenerateRequest, inputs []generation.Input) error {
	var problems []Problem
	err := m.RunManagedTask(ctx, func(g *ontology.Graph) error {
		for i, in := range inputs {
			for _, verr := range validation.ValidateGraph(in.Template, req.Inputs[i].Parameters, g) {
				problems = append(problems, Problem{Input: i, Error: verr})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return &InputError{Err: ErrValidation, Problems: problems}
	}
	return nil
}

func blockers(result *generation.Result) []string {
	var reasons []string
	for _, e := range result.Errors {
		reasons = append(reasons, e.Error())
	}
	for _, o := range result.Outputs {
		for _, w := range o.Warnings {
			reasons = append(reasons, fmt.Sprintf("%q: %s", o.Label, w.Message))
		}
	}
	return reasons
}

func joinGenerationErrors(errs []*generation.Error) error {
	if len(errs) == 0 {
		return errors.New("templates produced no candidates")
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

func messages(outs []generation.Output) []string {
	msgs := make([]string, len(outs))
	for i := range outs {
		msgs[i] = outs[i].Message()
	}
	return msgs
}

// review asks the reviewer about each candidate. Reviewer failures only
// leave a gap.
func (s *Service) review(ctx context.Context, outs []generation.Output) []*agent.Review {
	if s.reviewer == nil {
		return nil
	}
	reviews := make([]*agent.Review, len(outs))
	for i, o := range outs {
		r, err := s.reviewer.Review(ctx, o)
		if err != nil {
			s.logger.Warn("candidate review failed", "template", o.Template, "label", o.Label, "error", err)
			continue
		}
		reviews[i] = r
	}
	return reviews
}

// applyCommitted brings the live graph in line with a successful commit.
// A failed update discards the graph, so the next task reloads from the
// canonical source; the commit itself stands either way.
func (s *Service) applyCommitted(ctx context.Context, m *taskmanager.Manager, cs *commit.ChangeSet, res *commit.Result) {
	frames, err := cs.Resolve(res.AssignedIDs)
	if err == nil {
		err = m.RunMutatingTask(ctx, func(g *ontology.Graph) error {
			return g.Apply(frames)
		})
	}
	if err != nil {
		s.logger.Error("failed to apply committed changes to graph", "ontology", m.Name(), "changeset", cs.ID, "error", err)
	}
}

// AvailableTemplates lists the templates of an ontology sorted by name. An
// empty name yields an empty list.
func (s *Service) AvailableTemplates(ontology string) ([]templates.Template, error) {
	if ontology == "" {
		return nil, nil
	}
	if _, err := s.registry.Get(ontology); err != nil {
		return nil, &InputError{Err: err}
	}
	return s.templates.Templates(ontology)
}

// ObsoleteRequest asks for a term to be made obsolete.
type ObsoleteRequest struct {
	Ontology   string   `json:"ontology"`
	TermID     string   `json:"term_id"`
	Reason     string   `json:"reason"`
	ReplacedBy []string `json:"replaced_by,omitempty"`
	Commit     bool     `json:"commit"`
	Identity   string   `json:"identity,omitempty"`
	Secret     string   `json:"-"`
}

// ObsoleteResponse carries the proposed change and, after a commit, its
// result.
type ObsoleteResponse struct {
	Diff   commit.Diff    `json:"diff"`
	Commit *commit.Result `json:"commit,omitempty"`
}

// ObsoleteTerm prepares the obsoletion of a term and commits it when asked.
func (s *Service) ObsoleteTerm(ctx context.Context, req ObsoleteRequest) (*ObsoleteResponse, error) {
	switch {
	case req.Ontology == "":
		return nil, &InputError{Err: ErrNoOntology}
	case req.TermID == "":
		return nil, &InputError{Err: ErrNoTermID}
	case req.Commit && req.Identity == "":
		return nil, &InputError{Err: ErrMissingIdentity}
	}
	manager, err := s.registry.Get(req.Ontology)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	if req.Commit && !s.credentials.Validate(req.Identity, req.Secret) {
		return nil, &CredentialError{Identity: req.Identity}
	}

	var cs *commit.ChangeSet
	err = manager.RunManagedTask(ctx, func(g *ontology.Graph) error {
		var err error
		cs, err = s.commits.PrepareObsoletion(g, req.Identity, req.TermID, req.Reason, req.ReplacedBy...)
		return err
	})
	if errors.Is(err, ontology.ErrUnknownTerm) || errors.Is(err, commit.ErrNoChange) {
		return nil, &InputError{Err: err}
	}
	if err != nil {
		return nil, err
	}

	resp := &ObsoleteResponse{Diff: cs.Changes[0].Diff}
	if !req.Commit {
		return resp, nil
	}
	res, err := s.commits.Commit(ctx, cs)
	if err != nil {
		return nil, err
	}
	s.applyCommitted(ctx, manager, cs, res)
	resp.Commit = res
	return resp, nil
}

// CheckConsistency runs the reasoner over the current graph of an ontology.
func (s *Service) CheckConsistency(ctx context.Context, ontologyName string) (*reasoner.Consistency, error) {
	manager, err := s.registry.Get(ontologyName)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	var c reasoner.Consistency
	err = manager.RunManagedTask(ctx, func(g *ontology.Graph) error {
		c = s.reasoner.CreateReasoner(g).IsConsistent()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Frame returns the current frame of a term, for display.
func (s *Service) Frame(ctx context.Context, ontologyName, termID string) (*obo.Frame, error) {
	manager, err := s.registry.Get(ontologyName)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	var f *obo.Frame
	err = manager.RunManagedTask(ctx, func(g *ontology.Graph) error {
		var ok bool
		if f, ok = g.Frame(termID); !ok {
			return &InputError{Err: fmt.Errorf("%w: %s", ontology.ErrUnknownTerm, termID)}
		}
		return nil
	})
	return f, err
}

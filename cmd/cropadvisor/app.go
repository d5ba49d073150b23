package main

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dshills/cropadvisor/internal/advisory"
	"github.com/dshills/cropadvisor/internal/conditions"
	"github.com/dshills/cropadvisor/internal/config"
	"github.com/dshills/cropadvisor/internal/engine"
	"github.com/dshills/cropadvisor/internal/guidance"
	"github.com/dshills/cropadvisor/internal/irrigation"
	"github.com/dshills/cropadvisor/internal/knowledge"
)

// app bundles the services built from one configuration.
type app struct {
	kb         *knowledge.Base
	engine     *engine.Engine
	guidance   *guidance.Service
	irrigation *irrigation.Service
}

// newApp wires the knowledge base, the advisory client, the engine and the
// guidance and irrigation services. A disabled or unavailable advisory
// service yields local-only output rather than an error.
func newApp(c *config.Config, log *zap.Logger) (*app, error) {
	if log == nil {
		log = zap.NewNop()
	}
	kb := knowledge.Default()
	if c.Knowledge.Path != "" {
		loaded, err := knowledge.Load(c.Knowledge.Path)
		if err != nil {
			return nil, eris.Wrap(err, "load knowledge base")
		}
		kb = loaded
	}

	opts, err := c.AdvisoryOptions()
	if err != nil {
		return nil, err
	}

	var (
		adv  engine.Advisor
		comp guidance.Completer
		irr  irrigation.Completer
	)
	if strings.EqualFold(c.Advisory.Provider, advisory.ProviderNone) {
		log.Info("advisory service disabled; local-only output")
	} else if client, err := advisory.New(opts, log); err != nil {
		log.Warn("advisory service unavailable; local-only output", zap.Error(err))
	} else {
		adv, comp, irr = client, client, client
	}

	return &app{
		kb:         kb,
		engine:     engine.New(kb, c.EngineTunables(), adv, log),
		guidance:   guidance.NewService(kb, comp, opts.Profile, log),
		irrigation: irrigation.NewService(kb, irr, opts.Profile, log),
	}, nil
}

// classify attaches the exit code for err.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var verr *conditions.ValidationError
	if errors.As(err, &verr) {
		return &exitError{code: exitCodeBadInput, err: err}
	}
	return &exitError{code: exitCodeInternal, err: err}
}

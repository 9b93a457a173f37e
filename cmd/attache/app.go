package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	emailx "github.com/attachehq/attache/adapters/email"
	linkedinx "github.com/attachehq/attache/adapters/linkedin"
	whatsappx "github.com/attachehq/attache/adapters/whatsapp"
	contractx "github.com/attachehq/attache/agent/contract"
	dispatcherx "github.com/attachehq/attache/agent/dispatcher"
	registryx "github.com/attachehq/attache/agent/registry"
	resolverx "github.com/attachehq/attache/agent/resolver"
	configx "github.com/attachehq/attache/pkg/config"
	llmx "github.com/attachehq/attache/pkg/llm"
	logx "github.com/attachehq/attache/pkg/logger"
	"github.com/attachehq/attache/store/messagelog"
)

// app is everything a command needs after assembly.
type app struct {
	dispatcher  *dispatcherx.Dispatcher
	store       *messagelog.Store
	model       string
	verifyToken string
	active      []string
	inactive    []string
	log         zerolog.Logger
}

// buildApp assembles the pipeline from environment configs. Services with
// incomplete credentials are skipped, not fatal; only the LLM is mandatory.
func buildApp() (*app, error) {
	log := logx.With("cli")

	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, err
	}
	client, err := llmx.NewClient(*llmCfg)
	if err != nil {
		return nil, err
	}
	res, err := resolverx.New(client, *llmCfg)
	if err != nil {
		return nil, err
	}

	a := &app{model: llmCfg.Model, log: log}

	// The WhatsApp message log is optional storage; an unreachable database
	// degrades to "no inbox" instead of refusing to start.
	logCfg, err := configx.New[messagelog.Config]("MESSAGE_LOG")
	if err != nil {
		return nil, err
	}
	if logCfg.IsConfigured() {
		store, err := messagelog.Open(*logCfg)
		if err != nil {
			log.Warn().Err(err).Msg("message log disabled")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = store.EnsureSchema(ctx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("message log schema failed, disabling")
				_ = store.Close()
			} else {
				a.store = store
			}
		}
	}

	var adapters []contractx.Adapter

	emailCfg, err := configx.New[emailx.Config]("EMAIL")
	if err != nil {
		return nil, err
	}
	if emailCfg.IsConfigured() {
		adapter, err := emailx.New(*emailCfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
		a.active = append(a.active, "email")
	} else {
		a.inactive = append(a.inactive, "email")
	}

	waCfg, err := configx.New[whatsappx.Config]("WHATSAPP")
	if err != nil {
		return nil, err
	}
	a.verifyToken = waCfg.VerifyToken
	if waCfg.IsConfigured() {
		var opts []whatsappx.Option
		if a.store != nil {
			opts = append(opts, whatsappx.WithMessageReader(a.store))
		}
		adapter, err := whatsappx.New(*waCfg, opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
		a.active = append(a.active, "whatsapp")
	} else {
		a.inactive = append(a.inactive, "whatsapp")
	}

	liCfg, err := configx.New[linkedinx.Config]("LINKEDIN")
	if err != nil {
		return nil, err
	}
	if liCfg.IsConfigured() {
		adapter, err := linkedinx.New(*liCfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
		a.active = append(a.active, "linkedin")
	} else {
		a.inactive = append(a.inactive, "linkedin")
	}

	if len(a.inactive) > 0 {
		log.Warn().Strs("services", a.inactive).Msg("services without credentials are disabled")
	}

	reg, err := registryx.Build(adapters...)
	if err != nil {
		return nil, err
	}
	d, err := dispatcherx.New(reg, res)
	if err != nil {
		return nil, err
	}
	a.dispatcher = d

	log.Info().
		Str("model", a.model).
		Strs("services", a.active).
		Int("actions", reg.Len()).
		Msg("assistant assembled")
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

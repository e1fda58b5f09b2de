// Package app wires configuration into the concrete components shared by the
// server binary and the CLI.
package app

import (
	"github.com/dharsanguruparan/pondvision/internal/certificate"
	"github.com/dharsanguruparan/pondvision/internal/config"
	"github.com/dharsanguruparan/pondvision/internal/processing"
	"github.com/dharsanguruparan/pondvision/internal/server"
	"github.com/dharsanguruparan/pondvision/internal/signing"
	"github.com/dharsanguruparan/pondvision/internal/storage"
	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// NewGenerator returns a generator seeded from cfg.Seed when set.
func NewGenerator(cfg *config.Config) *verdict.Generator {
	if cfg.Seed != 0 {
		return verdict.NewGenerator(verdict.NewSeededSource(cfg.Seed))
	}
	return verdict.NewGenerator(verdict.NewRandomSource())
}

// NewServer builds the HTTP server and its dependencies.
func NewServer(cfg *config.Config) (*server.Server, error) {
	store := storage.NewMemoryStore()
	slot := storage.NewVerdictSlot()
	processor := processing.New(store, slot, NewGenerator(cfg), processing.Options{
		QueueSize:  cfg.QueueSize,
		StageScale: cfg.StageScale,
	})
	signer := signing.NewSigner(cfg.SigningSecret)
	return server.New(cfg, store, slot, processor, signer, certificate.NewRenderer())
}

package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lotworks/dealdocs/internal/automap"
	"github.com/lotworks/dealdocs/internal/catalog"
	"github.com/lotworks/dealdocs/internal/store"
	"github.com/lotworks/dealdocs/internal/template"
	"github.com/lotworks/dealdocs/pkg/pdfengine"
)

// env bundles the wired components shared by the CLI commands.
type env struct {
	Store   store.Store
	Catalog *catalog.Catalog
	Mapper  *automap.Mapper
	Manager *template.Manager
	Engine  pdfengine.Client
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	cat, err := initCatalog()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	mapper := automap.New(cat, automap.Config{MinScore: cfg.AutoMap.MinScore})

	var engine pdfengine.Client
	if cfg.PDFEngine.BaseURL != "" {
		engine = pdfengine.NewClient(cfg.PDFEngine.BaseURL, cfg.PDFEngine.Key)
	}

	var extractor template.FieldExtractor
	if engine != nil {
		extractor = engine
	}

	mgr := template.NewManager(st, extractor, mapper, template.Config{
		PollInterval: time.Duration(cfg.Extraction.PollIntervalSecs) * time.Second,
		PollTimeout:  time.Duration(cfg.Extraction.TimeoutSecs) * time.Second,
	})

	return &env{Store: st, Catalog: cat, Mapper: mapper, Manager: mgr, Engine: engine}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "dealdocs.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFromFile(cfg.Catalog.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "load catalog %s", cfg.Catalog.Path)
	}
	return cat, nil
}

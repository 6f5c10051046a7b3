package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"

	"github.com/haatos/cijoe/internal"
	"github.com/haatos/cijoe/internal/service"
	"github.com/haatos/cijoe/internal/settings"
	"github.com/haatos/cijoe/internal/store"
)

type app struct {
	config *internal.Configuration
	joe    *service.Joe
	events *service.BuildEvents
	dbs    []*sql.DB
}

func newApp(ctx context.Context, as *settings.AppSettings) (*app, error) {
	projectPath, err := filepath.Abs(as.ProjectPath)
	if err != nil {
		return nil, err
	}
	config, err := internal.LoadConfiguration(projectPath)
	if err != nil {
		return nil, err
	}

	a := &app{config: config, events: service.NewBuildEvents()}
	buildStore, err := a.openStore(as.Store, projectPath)
	if err != nil {
		return nil, err
	}

	workingCopy := service.NewGitWorkingCopy(projectPath)
	user, project, err := workingCopy.UserAndProject(ctx)
	if err != nil {
		log.Println("err reading repository identity:", err)
		project = filepath.Base(projectPath)
	}

	var notifiers []service.Notifier
	if config.NotifyURL != "" {
		notifiers = append(notifiers, service.NewWebhookNotifier(config.NotifyURL))
	}

	a.joe = service.NewJoe(service.JoeParams{
		ProjectPath: projectPath,
		User:        user,
		Project:     project,
		Config:      config,
		Store:       buildStore,
		WorkingCopy: workingCopy,
		Runner:      service.NewProcessRunner(),
		Hooks:       service.NewHookRunner(projectPath),
		Notifiers:   notifiers,
		Events:      a.events,
	})
	return a, nil
}

func (a *app) openStore(kind, projectPath string) (store.BuildStore, error) {
	switch kind {
	case settings.StoreFile:
		return store.NewBuildFileStore(projectPath), nil
	case settings.StoreSQLite:
		rdb, rwdb, err := store.OpenBuildDatabases(projectPath)
		if err != nil {
			return nil, fmt.Errorf("err opening build database: %w", err)
		}
		a.dbs = append(a.dbs, rdb, rwdb)
		return store.NewBuildSQLiteStore(rdb, rwdb), nil
	}
	return nil, fmt.Errorf("unknown store %q", kind)
}

func (a *app) Close() {
	for _, db := range a.dbs {
		if err := db.Close(); err != nil {
			log.Println("err closing database:", err)
		}
	}
}

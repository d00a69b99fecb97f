package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ghyeongl/warehouse/cache"
	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/drive"
	wsync "github.com/ghyeongl/warehouse/sync"
	"github.com/ghyeongl/warehouse/warehouse"
)

const webhookTimeout = 10 * time.Second

// app holds the wiring shared by commands that talk to Drive.
type app struct {
	cfg    *config.Config
	client drive.Client
	store  cache.Store
	drives *config.Drives
	mgr    *wsync.Manager
	svc    *warehouse.Service
}

func openApp(ctx context.Context, c *config.Config) (*app, error) {
	client, err := drive.NewGoogleClient(ctx, drive.GoogleOptions{APIKey: c.APIKey})
	if err != nil {
		return nil, err
	}
	return newApp(c, client)
}

func newApp(c *config.Config, client drive.Client) (*app, error) {
	store, err := cache.Open(c.Cache)
	if err != nil {
		return nil, err
	}
	drives := config.NewDrives(c.DrivesFile)

	var reporter wsync.Reporter
	if c.Webhook.URL != "" {
		reporter = &wsync.WebhookReporter{
			URL:    c.Webhook.URL,
			Secret: c.Webhook.Secret,
			Client: &http.Client{Timeout: webhookTimeout},
		}
	}

	events := wsync.NewEventBus()
	mgr := wsync.NewManager(client, wsync.NewIndexStore(store, 0), wsync.ManagerConfig{
		Limits:         c.Crawl,
		ChangePageSize: c.Changes.PageSize,
		MaxChangePages: c.Changes.MaxPages,
		MaxChanges:     c.Changes.MaxChanges,
		Reporter:       reporter,
		WarehouseName:  drives.Name,
		Events:         events,
		State:          wsync.NewStateTracker(events),
	})
	svc := warehouse.NewService(mgr, drives, warehouse.Options{
		SyncSecret: c.SyncSecret,
		CronSecret: c.CronSecret,
		StaleAfter: c.StaleAfter,
	})

	return &app{cfg: c, client: client, store: store, drives: drives, mgr: mgr, svc: svc}, nil
}

func (a *app) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close index store: %w", err)
	}
	return nil
}

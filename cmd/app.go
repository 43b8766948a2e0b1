package cmd

import (
	"context"
	"errors"
	"fmt"

	coreconfig "github.com/AzielCF/az-postsync/core/config"
	coreDB "github.com/AzielCF/az-postsync/core/database"
	domainNotification "github.com/AzielCF/az-postsync/domains/notification"
	domainReconcile "github.com/AzielCF/az-postsync/domains/reconcile"
	domainSchedule "github.com/AzielCF/az-postsync/domains/schedule"
	"github.com/AzielCF/az-postsync/infrastructure/valkey"
	"github.com/AzielCF/az-postsync/integrations/instagram"
	"github.com/AzielCF/az-postsync/integrations/notify"
	"github.com/AzielCF/az-postsync/repository"
	uiRest "github.com/AzielCF/az-postsync/ui/rest"
	"github.com/AzielCF/az-postsync/usecase"
	"github.com/sirupsen/logrus"
)

// application is everything a command needs, built once from the config.
type application struct {
	cfg       *coreconfig.Config
	store     domainSchedule.IScheduleStore
	reconcile domainReconcile.IReconcileUsecase
	valkey    *valkey.Client
	health    map[string]uiRest.HealthCheck
}

func buildApp(ctx context.Context, cfg *coreconfig.Config, serverID string) (*application, error) {
	app := &application{cfg: cfg, health: map[string]uiRest.HealthCheck{}}

	if cfg.ValkeyRequired() {
		vk, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		app.valkey = vk
		app.health["valkey"] = vk.Ping
		logrus.Infof("[VALKEY] Connected to %s", cfg.Valkey.Address)
	}

	store, err := app.buildStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.store = store
	app.health["store"] = func(ctx context.Context) error {
		_, err := store.Fetch(ctx)
		if err == nil || errors.Is(err, domainSchedule.ErrNotFound) {
			return nil
		}
		return err
	}

	var (
		lock    domainReconcile.IRunLock
		history domainReconcile.IRunHistory
	)
	if app.valkey != nil {
		lock = repository.NewValkeyRunLock(app.valkey, serverID)
		history = repository.NewValkeyRunHistory(app.valkey, cfg.Engine.HistorySize)
	} else {
		lock = repository.NewMemoryRunLock()
		history = repository.NewMemoryRunHistory(cfg.Engine.HistorySize)
	}

	client := instagram.NewClient(instagram.Config{
		BaseURL: cfg.Platform.BaseURL,
		Timeout: cfg.Platform.Timeout,
	})
	pub := instagram.NewPublisher(client, nil, instagram.PublisherOptions{
		PollAttempts:     cfg.Platform.PollAttempts,
		PollInitialDelay: cfg.Platform.PollDelay,
		PollMaxDelay:     cfg.Platform.PollMaxDelay,
		RecentLookup:     cfg.Platform.RecentLookup,
	})

	app.reconcile = usecase.NewReconcileService(usecase.ReconcileDeps{
		Store:     store,
		Publisher: pub,
		Notifier:  buildNotifier(cfg.Notify),
		Lock:      lock,
		History:   history,
	}, usecase.ReconcileOptions{
		ServerID:     serverID,
		MaxAttempts:  cfg.Engine.MaxAttempts,
		RetryDelays:  cfg.Engine.RetryDelays,
		CallSpacing:  cfg.Engine.CallSpacing,
		StaleAfter:   cfg.Engine.StaleAfter,
		WriteRetries: cfg.Engine.WriteRetries,
		LockTTL:      cfg.Engine.LockTTL,
	})

	logrus.Infof("[APP] Server %s ready (store=%s, lock=%T)", serverID, cfg.Store.Backend, lock)
	return app, nil
}

func (a *application) buildStore(ctx context.Context) (domainSchedule.IScheduleStore, error) {
	s := a.cfg.Store
	switch s.Backend {
	case coreconfig.BackendFile:
		return repository.NewFileScheduleStore(s.FilePath), nil
	case coreconfig.BackendHTTP:
		return repository.NewHTTPScheduleStore(s.HTTPURL, s.HTTPToken, s.HTTPTimeout, nil), nil
	case coreconfig.BackendValkey:
		if a.valkey == nil {
			return nil, fmt.Errorf("valkey store selected but no valkey client is configured")
		}
		return repository.NewValkeyScheduleStore(a.valkey, s.Key), nil
	case coreconfig.BackendSQL:
		db, err := coreDB.NewDatabase(a.cfg)
		if err != nil {
			return nil, err
		}
		repo := repository.NewScheduleGormRepository(db, s.Key)
		if err := repo.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate schedule table: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", s.Backend)
	}
}

func buildNotifier(cfg coreconfig.NotifyConfig) domainNotification.INotifier {
	var notifiers []domainNotification.INotifier
	if cfg.Log {
		notifiers = append(notifiers, notify.LogNotifier{})
	}
	if len(cfg.WebhookURLs) > 0 {
		notifiers = append(notifiers, notify.NewWebhookNotifier(notify.WebhookConfig{
			URLs:               cfg.WebhookURLs,
			Secret:             cfg.WebhookSecret,
			InsecureSkipVerify: cfg.WebhookInsecure,
		}))
	}
	if len(cfg.EmailTo) > 0 {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			To:       cfg.EmailTo,
		}))
	}
	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notify.NewMultiNotifier(notifiers...)
	}
}

// Close releases connections opened by buildApp.
func (a *application) Close() {
	if a.valkey != nil {
		a.valkey.Close()
	}
	if err := coreDB.Close(); err != nil {
		logrus.Warnf("[APP] Failed to close database: %v", err)
	}
}

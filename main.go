// Encadri TUI - terminal client for the Encadri supervision platform's
// real-time chat and notifications.
//
// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bahadhay/encadri-tui/internal/api"
	"github.com/bahadhay/encadri-tui/internal/cache"
	chatclient "github.com/bahadhay/encadri-tui/internal/chat"
	"github.com/bahadhay/encadri-tui/internal/chatview"
	"github.com/bahadhay/encadri-tui/internal/config"
	"github.com/bahadhay/encadri-tui/internal/directory"
	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/model"
	"github.com/bahadhay/encadri-tui/internal/notify"
	chatui "github.com/bahadhay/encadri-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file path (default ~/.encadri/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("encadri-tui %s (%s)\n", Version, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "encadri-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, logClose, err := openLogger()
	if err != nil {
		return err
	}
	defer logClose()
	log.SetOutput(logger.Writer())

	identity := hub.Identity{Email: cfg.Identity.Email, Name: cfg.Identity.Name}

	// REST layer: project membership and uploads.
	rest := api.NewClient(cfg.Server.BaseURL).WithLogger(logger)
	dir := directory.New(rest, identity.Email)
	if err := dir.Refresh(context.Background()); err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	// Optional local history cache.
	var msgCache *cache.MessageCache
	if cfg.Chat.CacheEnabled {
		path, err := cfg.CachePath()
		if err == nil {
			msgCache, err = cache.Open(path)
		}
		if err != nil {
			logger.Printf("cache disabled: %v", err)
			msgCache = nil
		} else {
			defer msgCache.Close()
		}
	}

	// Two independent hub sessions: chat and notifications.
	chatConn := hub.NewConnection(cfg.ChatHubURL()).WithLogger(logger)
	notifyConn := hub.NewConnection(cfg.NotificationHubURL()).WithLogger(logger)

	session := chatclient.NewClient(chatConn, identity).WithLogger(logger)
	notifier := notify.NewClient(notifyConn, identity).
		WithLogger(logger).
		WithSeedLimit(cfg.Chat.NotificationLimit)

	controller := chatview.New(session, rest).
		WithLogger(logger).
		WithHistoryLimit(cfg.Chat.HistoryLimit).
		WithTypingInterval(time.Duration(cfg.Chat.TypingIntervalSecs) * time.Second)
	if msgCache != nil {
		controller.WithCache(msgCache)
	}

	presence := model.NewPresenceSet()
	wireChatEvents(session, controller, presence)

	if err := session.Start(context.Background()); err != nil {
		return fmt.Errorf("chat hub: %w", err)
	}
	defer session.Stop()
	if err := notifier.Start(context.Background()); err != nil {
		return fmt.Errorf("notification hub: %w", err)
	}
	defer notifier.Stop()

	seedPresence(session, presence, logger)

	ui := chatui.New(controller, dir, notifier, presence, identity.Email)
	program := tea.NewProgram(ui, tea.WithAltScreen())
	wireUIPump(program, controller, session, notifier, presence)

	// Hot-reload is limited to logging the change; identity and server
	// switches need a restart.
	if path := resolvedConfigPath(configPath); path != "" {
		if w, err := config.Watch(path, func(*config.Config) {
			logger.Printf("config changed on disk; restart to apply")
		}); err == nil {
			defer w.Close()
		} else {
			logger.Printf("config watch unavailable: %v", err)
		}
	}

	_, err = program.Run()
	return err
}

// wireChatEvents routes typed hub events into the reconciliation layer.
func wireChatEvents(session *chatclient.Client, controller *chatview.Controller, presence *model.PresenceSet) {
	session.OnMessage(controller.HandleMessage)
	session.OnTyping(controller.HandleTyping)
	session.OnMessageRead(controller.HandleReadReceipt)
	session.OnReactionUpdated(controller.HandleReaction)

	session.OnUserOnline(func(c chatclient.PresenceChange) { presence.SetOnline(c.Email, c.Name) })
	session.OnUserOffline(presence.SetOffline)
	session.OnLastSeenUpdated(func(u chatclient.LastSeenUpdate) { presence.SetLastSeen(u.Email, u.LastSeen) })
}

// wireUIPump forwards out-of-band state changes into the Bubble Tea
// event loop.
func wireUIPump(program *tea.Program, controller *chatview.Controller, session *chatclient.Client, notifier *notify.Client, presence *model.PresenceSet) {
	controller.OnChange(func() { program.Send(chatui.RefreshMsg{}) })

	session.OnStateChange(func(s hub.State) {
		program.Send(chatui.ConnStateMsg{Hub: "chat", State: s})
	})
	notifier.OnStateChange(func(s hub.State) {
		program.Send(chatui.ConnStateMsg{Hub: "notifications", State: s})
	})
	notifier.OnChange(func() { program.Send(chatui.RefreshMsg{}) })
	notifier.OnUnreadCount(func(int) { program.Send(chatui.RefreshMsg{}) })
	notifier.OnToast(func(n model.Notification) {
		program.Send(chatui.NotificationToastMsg{Notification: n})
	})

	session.OnUserOnline(func(chatclient.PresenceChange) { program.Send(chatui.RefreshMsg{}) })
	session.OnUserOffline(func(string) { program.Send(chatui.RefreshMsg{}) })
}

// seedPresence pulls the point-in-time online snapshot and reports our
// own activity.
func seedPresence(session *chatclient.Client, presence *model.PresenceSet, logger *log.Logger) {
	users, err := session.GetOnlineUsers(context.Background())
	if err != nil {
		logger.Printf("online users snapshot failed: %v", err)
		return
	}
	presence.Replace(users)
	if err := session.UpdateLastSeen(context.Background()); err != nil {
		logger.Printf("last-seen update failed: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func resolvedConfigPath(path string) string {
	if path != "" {
		return path
	}
	p, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	return p
}

// openLogger sends diagnostics to ~/.encadri/client.log so the TUI
// screen stays clean.
func openLogger() (*log.Logger, func(), error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "client.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.New(f, "", log.LstdFlags)
	return logger, func() { f.Close() }, nil
}

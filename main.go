package main

import (
	"embed"
	"log/slog"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	"go.aimuz.me/iris/internal/app"
)

//go:embed all:frontend/dist
var assets embed.FS

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.Info("starting app", "version", version, "commit", commit, "date", date)
	svc := app.New(app.Options{
		Version:     version,
		Hotkeys:     true,
		WatchConfig: true,
	})

	wailsApp := application.New(application.Options{
		Name:        "Iris",
		Description: "Ask about what you are looking at",
		Services: []application.Service{
			application.NewService(svc),
		},
		Assets: application.AssetOptions{
			Handler: application.BundledAssetFileServer(assets),
		},
		Mac: application.MacOptions{
			// Keep running with the overlay hidden; the tray reopens it.
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	// Overlay window: frameless, floating above other apps, hidden until a
	// response arrives.
	overlay := wailsApp.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:          "Iris",
		Width:          480,
		Height:         360,
		URL:            "/",
		AlwaysOnTop:    true,
		Frameless:      true,
		Hidden:         true,
		BackgroundType: application.BackgroundTypeTranslucent,
		Mac: application.MacWindow{
			TitleBar:                application.MacTitleBarHiddenInsetUnified,
			InvisibleTitleBarHeight: 38,
		},
		DevToolsEnabled: true,
	})

	// Closing the overlay dismisses the session and hides instead of destroying.
	overlay.RegisterHook(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		if err := svc.Dismiss(); err != nil {
			slog.Error("dismiss session", "error", err)
		}
		overlay.Hide()
	})

	svc.Init(wailsApp, overlay)

	tray := wailsApp.SystemTray.New()
	if icon, err := assets.ReadFile("frontend/dist/tray.png"); err == nil {
		tray.SetIcon(icon)
	} else {
		slog.Warn("load tray icon", "error", err)
		tray.SetLabel("Iris")
	}

	menu := wailsApp.NewMenu()
	menu.Add("Show Overlay").OnClick(func(ctx *application.Context) {
		overlay.Show()
	})
	menu.Add("Ask Now").
		SetAccelerator("CmdOrCtrl+Shift+Space").
		OnClick(func(ctx *application.Context) {
			svc.Trigger()
		})
	menu.Add("Copy Last Answer").OnClick(func(ctx *application.Context) {
		if err := svc.CopyLastResponse(); err != nil {
			slog.Error("copy from tray", "error", err)
		}
	})
	menu.Add("Clear Conversation").OnClick(func(ctx *application.Context) {
		svc.ClearHistory()
	})
	menu.Add("Restart Tracker").OnClick(func(ctx *application.Context) {
		go func() {
			if err := svc.RestartTracker(); err != nil {
				slog.Error("restart tracker", "error", err)
			}
		}()
	})

	// Profile submenu with radio buttons
	profileMenu := menu.AddSubmenu("Model")
	for _, p := range svc.GetProfiles() {
		profile := p
		profileMenu.AddRadio(profile.Name, profile.Active).OnClick(func(ctx *application.Context) {
			if err := svc.SetProfileActive(profile.ID); err != nil {
				slog.Error("set profile active", "error", err)
			}
		})
	}

	menu.AddSeparator()
	menu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			svc.Shutdown()
			wailsApp.Quit()
		})

	tray.SetMenu(menu)

	if err := wailsApp.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}

package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tkanda-dev/KoeNote/internal/api"
	"github.com/tkanda-dev/KoeNote/internal/audio"
	"github.com/tkanda-dev/KoeNote/internal/config"
	"github.com/tkanda-dev/KoeNote/internal/editor"
	"github.com/tkanda-dev/KoeNote/internal/hotkey"
	"github.com/tkanda-dev/KoeNote/internal/logger"
	"github.com/tkanda-dev/KoeNote/internal/note"
	"github.com/tkanda-dev/KoeNote/internal/notify"
	"github.com/tkanda-dev/KoeNote/internal/permissions"
	"github.com/tkanda-dev/KoeNote/internal/recording"
	"github.com/tkanda-dev/KoeNote/internal/server"
	"github.com/tkanda-dev/KoeNote/internal/transcribe"
	"github.com/tkanda-dev/KoeNote/internal/tray"
)

const (
	appName = "KoeNote"
	version = "0.1.0"
)

// App holds all application state
type App struct {
	logger      *logger.Logger
	config      *config.Config
	trayMgr     *tray.Manager
	httpServer  *server.Server
	apiHandler  *api.Handler
	hotkeyMgr   *hotkey.Manager
	audioDriver *audio.PortAudioDriver
	notifier    *notify.Manager
	session     *recording.Session

	micGranted bool
	accGranted bool
}

func init() {
	// macOS UI and CGO calls must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	app := &App{}

	var err error
	app.logger, err = logger.New(logger.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer app.logger.Close()

	app.logger.Info("%s v%s starting", appName, version)

	configPath := config.GetConfigPath()
	app.config, err = config.Load(configPath)
	if err != nil {
		app.logger.Error("failed to load config: %v", err)
		log.Fatalf("failed to load config: %v", err)
	}
	app.logger.Info("config loaded from %s", configPath)

	app.notifier = notify.NewManager(appName)

	app.httpServer = server.New(server.DefaultConfig())
	app.apiHandler = api.New(app.config, configPath, app.ReloadHotkey)
	app.apiHandler.RegisterRoutes(app.httpServer.Mux())

	app.trayMgr = tray.NewManager(tray.Config{
		OnReady:        app.onReady,
		OnToggle:       app.handleToggle,
		OnSettings:     app.handleOpenSettings,
		OnDeviceChange: app.handleDeviceChange,
		OnQuit:         app.handleQuit,
	})

	// Blocks until systray.Quit
	app.trayMgr.Run()
}

// onReady finishes initialization once the tray is up
func (a *App) onReady() {
	checker := permissions.NewChecker()
	a.micGranted = checker.MicrophoneAuthorized()
	a.accGranted = checker.AccessibilityAuthorized()
	a.apiHandler.SetPermissions(checker)

	if !a.micGranted {
		a.logger.Warn("microphone permission not granted, recording is disabled")
		a.notifier.Notify("Microphone permission is not granted. Enable it in System Settings.")
	}
	if !a.accGranted {
		a.logger.Warn("accessibility permission not granted, hotkey and paste are disabled")
		a.notifier.Notify("Accessibility permission is not granted. Enable it in System Settings.")
	}

	if a.micGranted {
		driver, err := audio.NewPortAudioDriver()
		if err != nil {
			a.logger.Error("failed to create audio driver: %v", err)
		} else {
			audioConfig := audio.DefaultConfig()
			audioConfig.DeviceID = a.config.GetAudioDeviceID()
			if err := driver.Initialize(audioConfig); err != nil {
				a.logger.Error("failed to initialize audio driver: %v", err)
				driver.Close()
			} else {
				a.audioDriver = driver
				a.apiHandler.SetAudioDriver(driver)
				a.logger.Info("audio driver ready (device %d)", audioConfig.DeviceID)
			}
		}
	}

	var driver audio.Driver
	if a.audioDriver != nil {
		driver = a.audioDriver
	}
	a.session = recording.New(
		driver,
		a.config,
		transcribe.New(transcribe.DefaultConfig()),
		note.New(note.DefaultConfig()),
		editor.NewManager(editor.DefaultConfig()),
		a.notifier,
		a.logger,
		recording.Config{MaxDuration: time.Duration(a.config.GetMaxRecordTime()) * time.Second},
	)
	a.session.OnStateChange(func(state recording.State) {
		a.trayMgr.SetState(trayState(state))
	})

	a.refreshDeviceMenu()

	if a.accGranted {
		a.hotkeyMgr = hotkey.New()
		binding := a.currentBinding()
		if err := a.hotkeyMgr.Register(binding); err != nil {
			a.logger.Error("failed to register hotkey: %v", err)
			a.notifier.Notify(fmt.Sprintf("Failed to register hotkey: %v", err))
		} else {
			a.logger.Info("hotkey registered: %s", binding.Format())
			go a.hotkeyEventLoop()
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("failed to start settings server: %v", err)
		a.notifier.Notify("The settings page could not be started.")
	}

	// Ctrl+C should run the same teardown as the Quit menu item
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("termination signal received")
		a.handleQuit()
		a.trayMgr.Quit()
	}()

	a.logger.Info("initialization complete")

	fmt.Printf("%s v%s is running\n", appName, version)
	fmt.Printf("Settings: %s\n", a.httpServer.URL())
	if a.hotkeyMgr != nil && a.hotkeyMgr.IsRunning() {
		fmt.Printf("Hotkey:   %s\n", a.hotkeyMgr.Binding().Format())
	}
	fmt.Printf("Quit with Ctrl+C or from the menu bar icon\n")
}

// trayState maps recording states onto tray icons
func trayState(state recording.State) tray.State {
	switch state {
	case recording.Recording:
		return tray.StateRecording
	case recording.Processing:
		return tray.StateProcessing
	default:
		return tray.StateIdle
	}
}

// currentBinding resolves the configured hotkey, falling back to the
// default when the stored combination cannot be parsed
func (a *App) currentBinding() hotkey.Binding {
	hk := a.config.GetHotkey()
	binding, err := hotkey.ParseBinding(hk.Ctrl, hk.Shift, hk.Alt, hk.Cmd, hk.Key)
	if err != nil {
		a.logger.Warn("invalid hotkey in config (%v), using default", err)
		return hotkey.DefaultBinding()
	}
	return binding
}

// hotkeyEventLoop turns every hotkey press into a session toggle
func (a *App) hotkeyEventLoop() {
	a.logger.Info("hotkey event loop started")

	for range a.hotkeyMgr.Events() {
		a.handleToggle()
	}

	a.logger.Info("hotkey event loop stopped")
}

// handleToggle starts or stops a dictation
func (a *App) handleToggle() {
	if a.session == nil {
		return
	}
	if a.audioDriver == nil {
		a.notifier.Notify("No audio capture device available")
		return
	}
	a.session.Toggle()
}

// handleOpenSettings opens the settings page in the default browser
func (a *App) handleOpenSettings() {
	if !a.httpServer.IsRunning() {
		a.logger.Error("settings server is not running")
		a.notifier.Notify("The settings page is unavailable. Restart the application.")
		return
	}

	url := a.httpServer.URL()
	a.logger.Info("opening settings page: %s", url)

	go func() {
		if err := exec.Command("open", url).Run(); err != nil {
			a.logger.Error("failed to open browser: %v", err)
			fmt.Printf("Open the settings page manually: %s\n", url)
		}
	}()
}

// handleDeviceChange switches the capture device from the tray menu
func (a *App) handleDeviceChange(deviceID int) {
	a.logger.Info("input device change requested: %d", deviceID)

	if a.session != nil && a.session.State() != recording.Idle {
		a.notifier.Notify("Finish the current recording before switching devices.")
		return
	}

	if err := a.config.Update(map[string]interface{}{"audio_device_id": float64(deviceID)}); err != nil {
		a.logger.Error("failed to update device config: %v", err)
		return
	}
	if err := a.config.Save(config.GetConfigPath()); err != nil {
		a.logger.Error("failed to save config: %v", err)
	}

	if a.audioDriver != nil {
		audioConfig := audio.DefaultConfig()
		audioConfig.DeviceID = deviceID
		if err := a.audioDriver.Initialize(audioConfig); err != nil {
			a.logger.Error("failed to switch audio device: %v", err)
			a.notifier.Notify(fmt.Sprintf("Failed to switch input device: %v", err))
			return
		}
	}

	a.refreshDeviceMenu()
	a.logger.Info("input device switched to %d", deviceID)
}

// refreshDeviceMenu rebuilds the device submenu from the driver
func (a *App) refreshDeviceMenu() {
	if a.audioDriver == nil {
		return
	}

	devices, err := a.audioDriver.ListDevices()
	if err != nil {
		a.logger.Warn("failed to list audio devices: %v", err)
		return
	}

	currentID := a.config.GetAudioDeviceID()
	trayDevices := make([]tray.Device, 0, len(devices))
	for _, dev := range devices {
		trayDevices = append(trayDevices, tray.Device{
			ID:        dev.ID,
			Name:      dev.Name,
			IsDefault: dev.IsDefault,
			IsCurrent: dev.ID == currentID,
		})
	}
	a.trayMgr.UpdateDeviceMenu(trayDevices)
}

// handleQuit tears everything down in dependency order
func (a *App) handleQuit() {
	a.logger.Info("shutting down")

	// Let an in-flight dictation settle instead of dropping it
	if a.session != nil {
		a.session.StopIfRecording()
		a.session.Wait()
	}

	if a.httpServer != nil && a.httpServer.IsRunning() {
		if err := a.httpServer.Stop(); err != nil {
			a.logger.Error("failed to stop settings server: %v", err)
		}
	}

	if a.hotkeyMgr != nil {
		a.hotkeyMgr.Close()
	}

	if a.audioDriver != nil {
		a.audioDriver.Close()
	}

	a.logger.Info("shutdown complete")
}

// ReloadHotkey re-registers the hotkey from the saved configuration.
// Called by the API handler after PUT /api/hotkey/register.
func (a *App) ReloadHotkey() error {
	a.logger.Info("hotkey reload requested")

	if !a.accGranted {
		return fmt.Errorf("accessibility permission not granted")
	}
	if a.hotkeyMgr == nil {
		return fmt.Errorf("hotkey manager not initialized")
	}

	freshConfig, err := config.Load(config.GetConfigPath())
	if err != nil {
		a.logger.Error("failed to reload config: %v", err)
		return fmt.Errorf("failed to reload config: %w", err)
	}

	hk := freshConfig.GetHotkey()
	newBinding, err := hotkey.ParseBinding(hk.Ctrl, hk.Shift, hk.Alt, hk.Cmd, hk.Key)
	if err != nil {
		return fmt.Errorf("invalid hotkey: %w", err)
	}

	var oldBinding hotkey.Binding
	needsRollback := false

	if a.hotkeyMgr.IsRunning() {
		oldBinding = a.hotkeyMgr.Binding()
		needsRollback = true

		if err := a.hotkeyMgr.Close(); err != nil {
			a.logger.Error("failed to unregister old hotkey: %v", err)
			return fmt.Errorf("failed to unregister old hotkey: %w", err)
		}
		// Let the old event loop drain before re-registering
		time.Sleep(200 * time.Millisecond)
	}

	if err := a.hotkeyMgr.Register(newBinding); err != nil {
		a.logger.Error("failed to register new hotkey: %v", err)

		if needsRollback {
			a.logger.Warn("rolling back to previous hotkey")
			if rollbackErr := a.hotkeyMgr.Register(oldBinding); rollbackErr != nil {
				a.logger.Error("rollback failed: %v", rollbackErr)
				a.notifier.Notify("Hotkey registration failed. Restart the application.")
				return fmt.Errorf("failed to register new hotkey and rollback failed: %w, rollback error: %v", err, rollbackErr)
			}
			go a.hotkeyEventLoop()
		}

		return fmt.Errorf("failed to register new hotkey: %w", err)
	}

	go a.hotkeyEventLoop()

	a.config.SetHotkey(hk)

	a.logger.Info("hotkey reloaded: %s", newBinding.Format())
	a.notifier.Notify(fmt.Sprintf("Hotkey changed to %s", newBinding.Format()))

	return nil
}

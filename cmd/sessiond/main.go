package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/auth"
	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/events"
	"github.com/jrsteele09/go-auth-session/idp/oauth2idp"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/metrics"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/storage/filerepo"
	storagerepofake "github.com/jrsteele09/go-auth-session/storage/repofake"
	"github.com/jrsteele09/go-auth-session/storage/sqliterepo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running session daemon")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Session daemon stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(c.GetLogLevel()); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepo(ctx, c)
	if err != nil {
		return err
	}
	defer closeRepo()

	provider, err := oauth2idp.Discover(ctx, c)
	if err != nil {
		return err
	}

	store, err := credentials.NewStore(repo, c)
	if err != nil {
		return err
	}
	bus := events.NewBus()
	controller, err := auth.NewSessionController(provider, store, bus, c)
	if err != nil {
		return err
	}
	defer controller.Close()
	controller.Subscribe(logEvent)
	collector := metrics.NewCollector(c.GetAppName())
	controller.Subscribe(collector.Handle)
	if addr := c.GetMetricsAddr(); addr != "" {
		shutdown := serveMetrics(addr, collector.Handler())
		defer shutdown()
	}

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("controller.Start: %w", err)
	}
	if _, ok := controller.Current(); ok {
		collector.SetAuthenticated(true)
	}
	if controller.State() == auth.StateUnauthenticated {
		if err := login(ctx, controller); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go readLines(lines)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleCommand(ctx, controller, line); err != nil {
				log.Warn().Err(err).Str("command", line).Msg("Command failed")
			}
		}
	}
}

// openRepo returns the durable storage selected by STORAGE_DRIVER.
func openRepo(ctx context.Context, c config.StorageConfig) (storage.Repo, func(), error) {
	switch c.GetStorageDriver() {
	case config.StorageDriverMemory:
		return storagerepofake.NewFakeStorageRepo(), func() {}, nil
	case config.StorageDriverFile:
		repo, err := filerepo.New(c.GetStoragePath())
		if err != nil {
			return nil, nil, fmt.Errorf("filerepo.New: %w", err)
		}
		return repo, func() {}, nil
	case config.StorageDriverSQLite:
		repo, err := sqliterepo.Open(ctx, c.GetStoragePath())
		if err != nil {
			return nil, nil, fmt.Errorf("sqliterepo.Open: %w", err)
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				log.Warn().Err(err).Msg("Closing session database")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", c.GetStorageDriver())
	}
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func login(ctx context.Context, controller *auth.SessionController) error {
	username, password := os.Getenv("USERNAME"), os.Getenv("PASSWORD")
	if username == "" {
		log.Info().Msg("No persisted session and no USERNAME set; waiting for commands")
		return nil
	}
	s, err := controller.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("controller.Login: %w", err)
	}
	log.Info().Str("user", s.Identity.UserID).Msg("Logged in")
	return nil
}

func readLines(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- strings.TrimSpace(scanner.Text())
	}
}

// handleCommand treats every input line as user activity; a few words also
// drive the controller directly.
func handleCommand(ctx context.Context, controller *auth.SessionController, line string) error {
	controller.RecordActivity(ctx)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "logout":
		return controller.Logout(ctx)
	case "login":
		if len(fields) != 3 {
			return errors.New("usage: login <username> <password>")
		}
		_, err := controller.Login(ctx, fields[1], fields[2])
		return err
	case "refresh":
		_, err := controller.Refresh(ctx)
		return err
	case "can":
		if len(fields) != 2 {
			return errors.New("usage: can <permission>")
		}
		fmt.Printf("%s: %t\n", fields[1], controller.Authorize(fields[1]))
	case "status":
		printStatus(controller)
	}
	return nil
}

func printStatus(controller *auth.SessionController) {
	s, ok := controller.Current()
	if !ok {
		fmt.Printf("state=%s\n", controller.State())
		return
	}
	next, _ := controller.NextRefreshAt()
	fmt.Printf("state=%s user=%s access_expires=%s next_refresh=%s permissions=%q\n",
		controller.State(), s.Identity.UserID, s.AccessExpiresAt.Format(time.RFC3339), next.Format(time.RFC3339), s.Permissions.String())
}

func logEvent(e events.Event) {
	l := log.Info().Str("event", e.Name())
	switch ev := e.(type) {
	case events.LoginSucceeded:
		l = l.Str("session_id", ev.Session.ID)
	case events.TokenRefreshed:
		l = l.Time("access_expires_at", ev.Session.AccessExpiresAt)
	case events.IdleWarning:
		l = l.Dur("remaining", ev.Remaining)
	default:
		if reason, ok := events.Ended(e); ok {
			l = l.Str("reason", reason.String())
		}
	}
	l.Msg("Session event")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

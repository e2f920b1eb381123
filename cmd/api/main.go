package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cotbi.org/internal/auth"
	"cotbi.org/internal/company"
	"cotbi.org/internal/event"
	"cotbi.org/internal/httpapi"
	"cotbi.org/internal/notify"
	"cotbi.org/internal/obs"
	"cotbi.org/internal/store/pg"
	"cotbi.org/internal/user"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		companies company.Store
		users     user.Store
		grants    auth.GrantStore
		events    event.Store
		notices   notify.Store
		pgStore   *pg.Store
	)
	if dsn := os.Getenv("COTBI_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		companies = pgStore.Companies()
		users = pgStore.Users()
		grants = pgStore.Grants()
		events = pgStore.Events()
		notices = pgStore.Notifications()
	} else {
		// No DSN: volatile in-memory stores, useful for local development.
		companies = company.NewInMemory()
		users = user.NewInMemory()
		grants = auth.NewInMemoryGrants()
		events = event.NewInMemory()
		notices = notify.NewInMemory()
	}

	hierarchy := company.NewHierarchy(companies)
	engine := auth.NewEngine(grants, hierarchy)

	permSvc, err := auth.NewService(grants, events, engine)
	if err != nil {
		log.Fatalf("permission service: %v", err)
	}
	userSvc, err := user.NewService(users, events)
	if err != nil {
		log.Fatalf("user service: %v", err)
	}

	// Without a Root user nothing can create companies or grant the first
	// permission, so a fresh deployment bootstraps one from the environment.
	if email := os.Getenv("COTBI_ROOT_EMAIL"); email != "" {
		name := os.Getenv("COTBI_ROOT_NAME")
		if name == "" {
			name = "root"
		}
		rootUser, err := userSvc.BootstrapRoot(context.Background(), name, email, os.Getenv("COTBI_ROOT_PASSWORD"))
		if err != nil {
			log.Fatalf("bootstrap root user: %v", err)
		}
		log.Printf("Root user %s ready", rootUser.Email)
	}

	notifier := notify.New(notices, users)

	companySvc, err := company.NewService(companies, events, engine, hierarchy, grants, notifier)
	if err != nil {
		log.Fatalf("company service: %v", err)
	}

	probe := httpapi.ReadyProbe{}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(probe, version, httpapi.Deps{
		Companies: companySvc,
		Users:     userSvc,
		Perms:     permSvc,
		Notices:   notices,
	})

	addr := os.Getenv("COTBI_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting cotbi-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

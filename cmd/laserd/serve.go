package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/mastercactapus/lasercard/actuator"
	"github.com/mastercactapus/lasercard/glyph"
	"github.com/mastercactapus/lasercard/history"
	"github.com/mastercactapus/lasercard/machine"
	"github.com/mastercactapus/lasercard/orders"
	"github.com/mastercactapus/lasercard/programs"
	"github.com/mastercactapus/lasercard/remote"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the machine and serve the remote interface.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}
		if sim, _ := cmd.Flags().GetBool("simulate"); sim {
			cfg.Serial.Simulate = true
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to bind to (overrides the config).")
	serveCmd.Flags().Bool("simulate", false, "Use an in-memory controller instead of the serial port.")
}

// loadCompositor loads the glyph catalog and layouts.
func loadCompositor(cfg Config) (*glyph.Compositor, error) {
	lf, err := glyph.LoadLayouts(cfg.Layouts)
	if err != nil {
		return nil, err
	}
	cat, err := glyph.LoadCatalog(cfg.Glyphs, lf.Fonts)
	if err != nil {
		return nil, err
	}
	return glyph.NewCompositor(cat, glyph.NewLayouts(cfg.Templates, lf.Variants)), nil
}

func newRouter(srv *remote.Server, dir *programs.Dir) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", srv)
	r.PathPrefix("/events/").Handler(srv.Events())
	r.PathPrefix("/programs/").Handler(http.StripPrefix("/programs", dir))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
			next.ServeHTTP(w, req)
		})
	})
	return r
}

func serve(ctx context.Context, cfg Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	comp, err := loadCompositor(cfg)
	if err != nil {
		log.Println("ERROR: composing disabled:", err)
	}

	book, err := orders.Open(cfg.Orders)
	if err != nil {
		return err
	}

	mc := cfg.MachineConfig()
	mc.Programs = programs.NewDir(cfg.Programs)

	var hist remote.History
	if cfg.History != "" {
		db, err := history.Open(cfg.History)
		if err != nil {
			return err
		}
		atexit.Register(func() { db.Close() })
		mc.Journal = db
		hist = db
	}

	if cfg.Actuator.URL != "" {
		url, retry := cfg.Actuator.URL, cfg.Actuator.Retry
		mc.DialActuator = func(ctx context.Context) (machine.Actuator, error) {
			return actuator.Dial(ctx, url, retry)
		}
	}

	m := machine.New(mc)
	atexit.Register(func() {
		m.Cancel()
		if err := m.SetFan(false); err != nil {
			log.Println("ERROR: fan off:", err)
		}
		m.Disconnect()
	})

	if err := m.Connect(ctx); err != nil {
		log.Println("ERROR: connect:", err)
	}

	laser := remote.NewLaser(m, comp, book, hist)
	srv := remote.NewServer(laser.Namespace())
	defer srv.Close()
	go laser.Run(ctx, cfg.Tick)

	hs := &http.Server{Addr: cfg.Addr, Handler: newRouter(srv, mc.Programs)}
	go func() {
		<-ctx.Done()
		hs.Shutdown(context.Background())
	}()

	log.Println("listening on", cfg.Addr)
	err = hs.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Package cmd implements the command-line interface for avpd.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avpd/avpd/boot"
	"github.com/avpd/avpd/catalog"
	"github.com/avpd/avpd/color"
	"github.com/avpd/avpd/constant"
	"github.com/avpd/avpd/engine"
	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/log"
	"github.com/avpd/avpd/playback"
	"github.com/avpd/avpd/server"
	"github.com/avpd/avpd/style"
	"github.com/avpd/avpd/syncer"
	"github.com/avpd/avpd/thumbnail"
	"github.com/avpd/avpd/where"
	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.Flags().String("host", "0.0.0.0", "Bind address for the control server")
	lo.Must0(viper.BindPFlag(key.ServerHost, rootCmd.Flags().Lookup("host")))

	rootCmd.Flags().IntP("port", "p", 8080, "Port for the control server")
	lo.Must0(viper.BindPFlag(key.ServerPort, rootCmd.Flags().Lookup("port")))

	rootCmd.Flags().Bool("no-sync", false, "Skip the cloud sync on startup")

	// Clear leftovers from previous runs.
	go func() {
		_ = filesystem.API().RemoveAll(where.Temp())
	}()
}

// rootCmd runs the appliance: engine, boot sequence and control server.
var rootCmd = &cobra.Command{
	Use:   constant.Avpd,
	Short: "A headless video playback appliance with an HTTP control surface",
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		if lo.Must(cmd.Flags().GetBool("no-sync")) {
			viper.Set(key.SyncOnBoot, false)
		}

		CheckDependencies()
		handleErr(serve())
	},
}

// serve wires the components together and blocks on the HTTP listener
// until a shutdown signal arrives.
func serve() error {
	eng := engine.NewMPV()
	defer func() { _ = eng.Close() }()

	cat := catalog.New(where.Videos())
	controller := playback.New(eng, cat)

	thumbs := thumbnail.New()
	sync := syncer.New()
	sync.SetPostSync(func() {
		res := cat.Refresh(true)
		log.Infof("post-sync: catalog now has %d videos", res.Count)
		thumbs.GenerateAll(cat.List())
	})

	seq := boot.New(controller, sync, thumbs)
	seq.Start()

	addr := fmt.Sprintf("%s:%d",
		viper.GetString(key.ServerHost),
		viper.GetInt(key.ServerPort))

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(controller, sync, thumbs, seq).Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("control server listening on %s", addr)
		fmt.Printf("%s listening on %s\n",
			style.Fg(color.Green)(constant.Avpd),
			style.Bold(addr))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-done:
		log.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	return nil
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}

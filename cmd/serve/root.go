package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ValentinKolb/lwtnt/cmd/util"
	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/tnttest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveOptions []tnttest.Option
	ServeCmd     = &cobra.Command{
		Use:   "serve",
		Short: "Start an in-process test server",
		Long: util.WrapString(`Start a minimal IPROTO server that speaks greeting, chap-sha1 auth and CALL.
It provides the functions test1, test2, test3, fiber.sleep and error and is meant for local experiments
with the other commands. The configuration can be set via command line flags or environment variables.
The format of the environment variables is LWTNT_<flag> (e.g. LWTNT_ENDPOINT=127.0.0.1:3301)`),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "endpoint"
	ServeCmd.Flags().String(key, "127.0.0.1:3301", util.WrapString("The address on which the server will listen (host:port or unix/:/path/to.sock)"))

	key = "users"
	ServeCmd.Flags().String(key, "", util.WrapString("Comma-separated list of users allowed to authenticate. Format: NAME=PASSWORD"))

	key = "workers"
	ServeCmd.Flags().Int(key, 64, util.WrapString("Maximum number of calls processed concurrently per connection"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to server options
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	endpoint, err := common.ParseURL(viper.GetString("endpoint"))
	if err != nil {
		return err
	}
	serveOptions = []tnttest.Option{
		tnttest.WithAddress(endpoint.Network, endpoint.Address),
		tnttest.WithMaxWorkersPerConn(viper.GetInt("workers")),
	}

	// parse users
	if users := viper.GetString("users"); users != "" {
		for _, user := range strings.Split(users, ",") {
			name, password, found := strings.Cut(strings.TrimSpace(user), "=")
			if !found || name == "" {
				return fmt.Errorf("invalid user format: %s (expected NAME=PASSWORD)", user)
			}
			serveOptions = append(serveOptions, tnttest.WithUser(name, password))
		}
	}

	return nil
}

// run starts the server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	srv, err := tnttest.NewServer(serveOptions...)
	if err != nil {
		return err
	}
	fmt.Printf("listening on %s\n", srv.URL())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Printf("shutting down (%d connections, %d calls served)\n", srv.Accepted(), srv.Calls())
	return srv.Close()
}

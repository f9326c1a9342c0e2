package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/lwtnt/cmd/conn"
	"github.com/ValentinKolb/lwtnt/cmd/serve"
	"github.com/ValentinKolb/lwtnt/cmd/util"
	"github.com/ValentinKolb/lwtnt/rpc/client"
	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "lwtnt",
		Short: "lightweight tarantool client",
		Long: fmt.Sprintf(`lwtnt (v%s)

A lightweight client for tarantool that pipelines calls over a single
IPROTO connection and reads their responses in any order.`, Version),
		SilenceUsage:       true,
		PersistentPreRunE:  initLogging,
		PersistentPostRunE: printMetrics,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of lwtnt",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lwtnt v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(conn.Commands...)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupClientFlags(RootCmd)
}

// initLogging sets the log level of all loggers before any command runs
func initLogging(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	return common.InitLoggers(common.ClientConfig{LogLevel: viper.GetString("log-level")})
}

// printMetrics prints the client metrics if requested
func printMetrics(*cobra.Command, []string) error {
	if viper.GetBool("metrics") {
		fmt.Println()
		client.WriteMetrics(os.Stdout)
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package conn

import (
	"github.com/ValentinKolb/lwtnt/cmd/util"
	"github.com/ValentinKolb/lwtnt/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcConn *client.Connection

	// Commands are the commands that talk to a server
	Commands = []*cobra.Command{callCmd, pipelineCmd, waitCmd, perfCmd}
)

// setupConnection connects to the server of the configured url
func setupConnection(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcConn, err = client.New(util.GetClientConfig())
	return err
}

// closeConnection cancels all pending requests and closes the connection
func closeConnection(*cobra.Command, []string) {
	if rpcConn != nil {
		rpcConn.Disconnect()
	}
}

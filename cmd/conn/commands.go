package conn

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/lwtnt/cmd/util"
	"github.com/ValentinKolb/lwtnt/rpc/client"
	"github.com/jpillora/backoff"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	callCmd = &cobra.Command{
		Use:     "call [function] [args...]",
		Short:   "Calls a function and prints its result",
		Long:    util.WrapString("Calls a function on the server and prints the result as JSON. Every argument is parsed as JSON, arguments that are no valid JSON are passed as strings."),
		Example: "  lwtnt call box.info\n  lwtnt call test3 aaa '[1, 2]'",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: setupConnection,
		PostRun: closeConnection,
		RunE:    runCall,
	}
	pipelineCmd = &cobra.Command{
		Use:     "pipeline [function...]",
		Short:   "Dispatches several calls before reading any response",
		Long:    util.WrapString("Sends a call for every function (without arguments) and prints the responses in the order they arrive."),
		Args:    cobra.MinimumNArgs(1),
		PreRunE: setupConnection,
		PostRun: closeConnection,
		RunE:    runPipeline,
	}
	waitCmd = &cobra.Command{
		Use:     "wait",
		Short:   "Waits until the server accepts connections",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: runWait,
	}
)

func init() {
	key := "attempts"
	waitCmd.Flags().Int(key, 20, util.WrapString("How many connects to try before giving up"))
	key = "max-delay"
	waitCmd.Flags().Duration(key, 2*time.Second, util.WrapString("Upper bound of the delay between two attempts"))
}

func runCall(_ *cobra.Command, args []string) error {
	callArgs, err := util.ParseArgs(args[1:])
	if err != nil {
		return err
	}

	req, err := rpcConn.Call(args[0], callArgs)
	if err != nil {
		return err
	}
	return printRequest(req)
}

func runPipeline(_ *cobra.Command, args []string) error {
	requests := make(map[uint64]string, len(args))
	for _, function := range args {
		req, err := rpcConn.Call(function, nil)
		if err != nil {
			return err
		}
		requests[req.ID()] = function
	}

	for range args {
		req, err := rpcConn.Read()
		if err != nil {
			return err
		}
		fmt.Printf("%-4d %-20s ", req.ID(), requests[req.ID()])
		if err := printRequest(req); err != nil {
			return err
		}
	}
	return nil
}

func runWait(_ *cobra.Command, _ []string) error {
	config := util.GetClientConfig()
	attempts := viper.GetInt("attempts")

	b := &backoff.Backoff{
		Factor: 1.5,
		Jitter: true,
		Min:    100 * time.Millisecond,
		Max:    viper.GetDuration("max-delay"),
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := client.New(config)
		if err == nil {
			conn.Disconnect()
			fmt.Printf("server is up (attempt %d)\n", i)
			return nil
		}
		lastErr = err

		duration := b.Duration()
		util.Logger.Infof("Server not reachable (attempt %d/%d): %v. Sleeping for %s.", i, attempts, err, duration)
		time.Sleep(duration)
	}

	return fmt.Errorf("server not reachable after %d attempts: %w", attempts, lastErr)
}

// printRequest waits for req and prints its result or error message
func printRequest(req *client.Request) error {
	result, ok, err := req.Result()
	if err != nil {
		return err
	}
	if !ok {
		msg, _, err := req.ErrorMessage()
		if err != nil {
			return err
		}
		fmt.Printf("error (code %d): %s\n", req.Code(), msg)
		return nil
	}

	out, err := util.FormatResult(result)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

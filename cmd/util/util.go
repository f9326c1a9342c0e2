package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var Logger = logger.GetLogger(common.LoggerCLI)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "url"
	cmd.PersistentFlags().String(key, "localhost:3301", WrapString("The url of the tarantool server (host:port, user:password@host:port or unix/:/path/to.sock)"))

	key = "connect-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultConnectTimeout, WrapString("Timeout for connect, greeting and auth"))

	key = "open-timeout"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Alternative connect timeout, the smaller of both wins (0 = unset)"))

	key = "send-buf-size"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum size of a single request in bytes (0 = unlimited)"))

	key = "recv-buf-size"
	cmd.PersistentFlags().Int(key, common.DefaultRecvBufSize, WrapString("Size of the socket read buffer in bytes"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY on tcp connections"))

	key = "lazy-connect"
	cmd.PersistentFlags().Bool(key, false, WrapString("Connect on the first call instead of on startup"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the client metrics in prometheus format before exiting"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("lwtnt")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		URL:            viper.GetString("url"),
		ConnectTimeout: viper.GetDuration("connect-timeout"),
		OpenTimeout:    viper.GetDuration("open-timeout"),
		SendBufSize:    viper.GetInt("send-buf-size"),
		RecvBufSize:    viper.GetInt("recv-buf-size"),
		TCPNoDelay:     viper.GetBool("tcp-nodelay"),
		LazyConnect:    viper.GetBool("lazy-connect"),
		LogLevel:       viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Argument and result conversion
// --------------------------------------------------------------------------

// ParseArgs parses every argument as a JSON value. Arguments that are not
// valid JSON are passed as plain strings, so `call test3 aaa bbb` works
// without quoting.
func ParseArgs(args []string) ([]interface{}, error) {
	parsed := make([]interface{}, 0, len(args))
	for _, arg := range args {
		dec := json.NewDecoder(strings.NewReader(arg))
		dec.UseNumber()

		var v interface{}
		if err := dec.Decode(&v); err != nil || dec.More() {
			parsed = append(parsed, arg)
			continue
		}

		v, err := convertNumbers(v)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %w", arg, err)
		}
		parsed = append(parsed, v)
	}
	return parsed, nil
}

// convertNumbers replaces json.Number with int64 or float64, so integers
// are encoded as msgpack integers
func convertNumbers(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return v.Float64()
	case []interface{}:
		for i := range v {
			c, err := convertNumbers(v[i])
			if err != nil {
				return nil, err
			}
			v[i] = c
		}
		return v, nil
	case map[string]interface{}:
		for k := range v {
			c, err := convertNumbers(v[k])
			if err != nil {
				return nil, err
			}
			v[k] = c
		}
		return v, nil
	default:
		return v, nil
	}
}

// FormatResult formats a call result as JSON. Maps with non string keys
// (which msgpack allows) are printed with their keys formatted by %v.
func FormatResult(result []interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(jsonCompatible(result)); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func jsonCompatible(v interface{}) interface{} {
	switch v := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = jsonCompatible(v[i])
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprintf("%v", k)] = jsonCompatible(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = jsonCompatible(val)
		}
		return out
	case []byte:
		return string(v)
	default:
		return v
	}
}

// Command zplctl runs a single bridge operation from the command line and
// prints the result as YAML.
//
//	zplctl printOverTCP ip=192.168.1.50 data='^XA^FO50,50^FDHello^FS^XZ'
//	zplctl printOverBluetooth mac=AC:3F:A4:12:34:56 data=@label.zpl
//	zplctl getPrinterInfo ip=192.168.1.50
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nixxel-company-limited/zpl-bridge/config"
	"github.com/nixxel-company-limited/zpl-bridge/router"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	v := config.NewViper(nil)
	fs := pflag.NewFlagSet("zplctl", pflag.ContinueOnError)
	if err := config.BindFlags(v, fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	list := fs.Bool("list", false, "list the available methods and exit")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: zplctl [flags] <method> [key=value ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	if *list {
		printYAML(map[string][]string{"methods": router.Methods()})
		return 0
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(v, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	args, err := parseArguments(fs.Args()[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	r := router.New(cfg.Factory(), cfg.Info.Keys)
	result, err := r.Call(fs.Arg(0), args)
	if err != nil {
		var re *router.Error
		if errors.As(err, &re) {
			printYAML(map[string]*router.Error{"error": re})
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}

	printYAML(result)
	return 0
}

// parseArguments turns key=value pairs into an argument bag. A value starting
// with @ is replaced by the contents of the named file.
func parseArguments(pairs []string) (router.Arguments, error) {
	args := router.Arguments{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		if strings.HasPrefix(value, "@") {
			data, err := os.ReadFile(value[1:])
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", key, err)
			}
			value = string(data)
		}
		args[key] = value
	}
	return args, nil
}

func printYAML(v any) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	enc.Encode(v)
	enc.Close()
}

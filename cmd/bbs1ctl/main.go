// Package main is the entry point for the bbs1ctl CLI
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/james-see/bbs1ctl/pkg/api"
	"github.com/james-see/bbs1ctl/pkg/config"
	"github.com/james-see/bbs1ctl/pkg/device"
	"github.com/james-see/bbs1ctl/pkg/logging"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	"github.com/james-see/bbs1ctl/pkg/tui"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFile  string
	portPattern string
	timeout     time.Duration
	logLevel    string
	simulate    bool
	strictPages bool

	outputFile string
	jsonOutput bool
	assumeYes  bool
	serverPort string

	cfg    config.Config
	logger = zap.NewNop()
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the command and closes the MIDI driver on every return
func run() error {
	defer midi.CloseDriver()
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "bbs1ctl",
	Short: "Talk to a Peterson BodyBeat Sync (BBS-1) over USB MIDI",
	Long: `bbs1ctl reads device information and tempo maps from a Peterson
BodyBeat Sync metronome over its USB MIDI SysEx protocol.

Examples:
  bbs1ctl info
  bbs1ctl fetch -o maps.syx
  bbs1ctl show maps.syx
  bbs1ctl export -o maps.mid
  bbs1ctl tui
  bbs1ctl serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show connection state, mode and versions",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download every tempo map",
	Long:  `Downloads every tempo map, prints them and optionally saves the raw page frames as a .syx dump.`,
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

var showCmd = &cobra.Command{
	Use:   "show <dump.syx>",
	Short: "Decode a saved dump",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var exportCmd = &cobra.Command{
	Use:   "export [dump.syx]",
	Short: "Render tempo maps as a Standard MIDI File",
	Long:  `Renders the tempo maps of a saved dump, or of the device when no dump is given, as a MIDI file with one track per map.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Erase every tempo map on the device",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "bbs1ctl.yaml", "Config file path")
	pf.StringVar(&portPattern, "port-pattern", device.DefaultPortPattern, "Regular expression matching the device MIDI port")
	pf.DurationVar(&timeout, "timeout", device.DefaultTimeout, "Wait for each device answer")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&simulate, "simulate", false, "Talk to a simulated device")
	pf.BoolVar(&strictPages, "strict-pages", false, "Reject tempo map pages that arrive out of order")

	fetchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Save the raw dump to this .syx file")
	fetchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print tempo maps as JSON")

	showCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print tempo maps as JSON")

	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .mid file path")

	deleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	serveCmd.Flags().StringVarP(&serverPort, "port", "p", "", "Server port (default from config, 8080)")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// setup loads the config file and lets explicitly set flags override it
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port-pattern") {
		cfg.PortPattern = portPattern
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("simulate") {
		cfg.Simulate = simulate
	}
	if flags.Changed("strict-pages") {
		cfg.PageOrder = strictPages
	}

	logger, err = logging.New(cfg.LogLevel, cfg.Development)
	return err
}

func openSession() (*device.Session, error) {
	tr, err := cfg.Opener(logger)()
	if err != nil {
		return nil, err
	}
	return device.NewSession(tr, cfg.SessionOptions(logger)...), nil
}

func decodeOptions() []tempo.DecodeOption {
	return cfg.DecodeOptions(logger)
}

func runInfo(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	info, err := sess.Info(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(tui.FormatInfo(info))
	return nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := device.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No MIDI ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Printf("%-4s %3d  %s\n", p.Direction, p.Number, p.Name)
	}
	return nil
}

func fetch(ctx context.Context) (*tempo.File, [][]byte, error) {
	sess, err := openSession()
	if err != nil {
		return nil, nil, err
	}
	defer sess.Close()
	return sess.FetchTempoMaps(ctx)
}

func runFetch(cmd *cobra.Command, args []string) error {
	f, frames, err := fetch(cmd.Context())
	if outputFile != "" && len(frames) > 0 {
		if werr := device.WriteDumpFile(outputFile, frames); werr != nil {
			return werr
		}
		fmt.Printf("Saved %d pages to %s\n", len(frames), outputFile)
	}
	if err != nil {
		return err
	}
	return printFile(f)
}

func runShow(cmd *cobra.Command, args []string) error {
	f, err := device.ReadTempoFile(args[0], decodeOptions()...)
	if err != nil {
		return err
	}
	return printFile(f)
}

func printFile(f *tempo.File) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewFileView(f))
	}
	fmt.Println(tui.FormatFile(f))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	var f *tempo.File
	var err error
	output := outputFile

	if len(args) == 1 {
		f, err = device.ReadTempoFile(args[0], decodeOptions()...)
		if output == "" {
			output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".mid"
		}
	} else {
		f, _, err = fetch(cmd.Context())
	}
	if err != nil {
		return err
	}
	if output == "" {
		output = "tempomaps.mid"
	}

	if err := tempo.WriteMIDIFile(f, output); err != nil {
		return err
	}
	fmt.Printf("Exported %d maps -> %s\n", f.MapsCount(), output)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !assumeYes {
		fmt.Print("Erase every tempo map on the device? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted")
			return nil
		}
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.DeleteTempoMaps(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("All tempo maps deleted")
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	dir, _ := os.Getwd()
	return tui.Run(tui.Options{
		Open:        cfg.Opener(logger),
		SessionOpts: cfg.SessionOptions(logger),
		DecodeOpts:  decodeOptions(),
		OutputDir:   dir,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	port := cfg.ServerPort
	if serverPort != "" {
		port = serverPort
	}
	fmt.Printf("Starting API server on port %s...\n", port)
	return api.StartServer(port, cfg.Opener(logger),
		api.WithLogger(logger),
		api.WithSessionOptions(cfg.SessionOptions(logger)...),
		api.WithDecodeOptions(decodeOptions()...))
}

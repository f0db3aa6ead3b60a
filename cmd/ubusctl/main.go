package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/command"
	"github.com/openwrt-tools/ubus-monitor/internal/config"
	"github.com/openwrt-tools/ubus-monitor/internal/events"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/poller"
	"github.com/openwrt-tools/ubus-monitor/internal/storage"
)

const usage = `usage: ubusctl [flags] <command> [args]

commands:
  snapshot                         poll once and print the snapshot
  list                             print the ubus objects of each device
  call <subsystem> <method> [json] raw ubus call
  reboot                           reboot the devices
  exec <command> [args...]         run a shell command
  service <name> <action>          run an init action on a service
  wps <interface> on|off           start or cancel WPS

flags:
`

func main() {
	// Command line flags
	var configFile, devices string
	flag.StringVar(&configFile, "config", "config/ubus-monitor.yml", "Configuration file path")
	flag.StringVar(&devices, "device", "", "Comma-separated device ids (default: all)")
	timeout := flag.Duration("timeout", time.Minute, "Overall command timeout")
	rawJSON := flag.Bool("json", false, "Print results as JSON")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && level > zerolog.WarnLevel {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := storage.NewMemoryStore()
	scheduler := poller.BuildScheduler(cfg.Identities(), cfg.Poller.RequestTimeout, cfg.Poller.MaxWorkers, store, nil)
	commands := command.NewService(
		command.NewExecutor(events.LogPublisher{}),
		command.NewBatch(command.SchedulerLookup(scheduler), cfg.Poller.MaxWorkers),
	)

	ids := selectDevices(devices, scheduler)

	results, err := run(ctx, commands, scheduler, ids, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(2)
	}

	if *rawJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(results)
	} else {
		printResults(results)
	}

	for _, r := range results {
		if r.Error != "" {
			os.Exit(1)
		}
	}
}

func selectDevices(list string, s *poller.Scheduler) []string {
	if f := models.ParseNameFilter(list); len(f) > 0 {
		return f.Names()
	}
	var ids []string
	for _, c := range s.Coordinators() {
		ids = append(ids, c.Device().ID)
	}
	return ids
}

func run(ctx context.Context, commands *command.Service, s *poller.Scheduler, ids, args []string) (map[string]command.Result, error) {
	name, args := args[0], args[1:]

	switch name {
	case "snapshot":
		return snapshot(ctx, s, ids), nil

	case "list":
		return listObjects(ctx, s, ids), nil

	case "call":
		if len(args) < 2 {
			return nil, fmt.Errorf("call needs <subsystem> <method> [json params]")
		}
		req := &models.CallRequest{Devices: ids, Subsystem: args[0], Method: args[1]}
		if len(args) > 2 {
			if err := json.Unmarshal([]byte(args[2]), &req.Params); err != nil {
				return nil, fmt.Errorf("parse params: %w", err)
			}
		}
		return commands.Call(ctx, req), nil

	case "reboot":
		return commands.Reboot(ctx, &models.RebootRequest{Devices: ids}), nil

	case "exec":
		if len(args) == 0 {
			return nil, fmt.Errorf("exec needs a command")
		}
		return commands.Exec(ctx, &models.ExecRequest{Devices: ids, Command: args[0], Params: args[1:]}), nil

	case "service":
		if len(args) != 2 {
			return nil, fmt.Errorf("service needs <name> <action>")
		}
		return commands.ServiceInit(ctx, &models.ServiceRequest{Devices: ids, Name: args[0], Action: args[1]}), nil

	case "wps":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return nil, fmt.Errorf("wps needs <interface> on|off")
		}
		return commands.SetWPS(ctx, &models.WPSRequest{Devices: ids, Interface: args[0], Enable: args[1] == "on"}), nil
	}

	return nil, fmt.Errorf("unknown command %q", name)
}

// snapshot polls the devices twice so mesh peers found in the first pass are
// measured in the second.
func snapshot(ctx context.Context, s *poller.Scheduler, ids []string) map[string]command.Result {
	results := make(map[string]command.Result, len(ids))
	for pass := 0; pass < 2; pass++ {
		for _, id := range ids {
			c, err := s.Coordinator(id)
			if err != nil {
				results[id] = command.Result{Error: err.Error()}
				continue
			}
			snap, err := c.Refresh(ctx)
			if err != nil {
				results[id] = command.Result{Error: err.Error()}
				continue
			}
			results[id] = command.Result{Data: snap}
		}
	}
	return results
}

func listObjects(ctx context.Context, s *poller.Scheduler, ids []string) map[string]command.Result {
	results := make(map[string]command.Result, len(ids))
	for _, id := range ids {
		c, err := s.Coordinator(id)
		if err != nil {
			results[id] = command.Result{Error: err.Error()}
			continue
		}
		catalog, err := c.Client().List(ctx)
		if err != nil {
			results[id] = command.Result{Error: err.Error()}
			continue
		}
		results[id] = command.Result{Data: poller.NewCapabilities(catalog).Names()}
	}
	return results
}

func printResults(results map[string]command.Result) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := results[id]
		if r.Error != "" {
			fmt.Printf("%s %s: %s\n", color.RedString("✘"), color.New(color.Bold).Sprint(id), r.Error)
			continue
		}
		fmt.Printf("%s %s\n", color.GreenString("✔"), color.New(color.Bold).Sprint(id))

		switch data := r.Data.(type) {
		case nil:
		case *models.Snapshot:
			printSnapshot(data)
		default:
			out, _ := json.MarshalIndent(data, "  ", "  ")
			fmt.Printf("  %s\n", out)
		}
	}
}

func printSnapshot(s *models.Snapshot) {
	fmt.Printf("  %s %s (%s)\n", color.CyanString("model"), s.Info.Model, s.Info.SWVersion)

	for _, name := range sortedKeys(s.Wireless) {
		ap := s.Wireless[name]
		wps := ""
		if ap.WPS != nil && *ap.WPS {
			wps = color.YellowString(" wps")
		}
		fmt.Printf("  %s %s: %d clients%s\n", color.CyanString("ap"), name, ap.Clients, wps)
	}
	for _, name := range sortedKeys(s.Mesh) {
		m := s.Mesh[name]
		fmt.Printf("  %s %s: %s signal %d dBm (level %d), %d/%d peers active\n",
			color.CyanString("mesh"), name, m.ID, m.Signal, m.SignalLevel(), m.ActivePeers(), len(m.Peers))
	}
	for _, name := range sortedKeys(s.Mwan3) {
		l := s.Mwan3[name]
		status := color.GreenString(l.Status)
		if !l.Online {
			status = color.RedString(l.Status)
		}
		fmt.Printf("  %s %s: %s, %.1f%% online\n", color.CyanString("mwan3"), name, status, l.OnlineRatio())
	}
	for _, name := range sortedKeys(s.Wan) {
		w := s.Wan[name]
		fmt.Printf("  %s %s: up=%t rx=%d tx=%d\n", color.CyanString("wan"), name, w.Up, w.RxBytes, w.TxBytes)
	}
	if total := s.TotalClients(); total > 0 {
		fmt.Printf("  %s %d\n", color.CyanString("clients"), total)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

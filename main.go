package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/obddiag/obdscan/pkg/adapter"
	"github.com/obddiag/obdscan/pkg/config"
	"github.com/obddiag/obdscan/pkg/debug"
	"github.com/obddiag/obdscan/pkg/dtc"
	"github.com/obddiag/obdscan/pkg/ebus"
	"github.com/obddiag/obdscan/pkg/session"
	"github.com/obddiag/obdscan/pkg/vehicle"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		kind        = flag.String("kind", "", "connection kind override: serial, bluetooth or tcp")
		address     = flag.String("address", "", "device path, Bluetooth MAC or TCP host override")
		clearCodes  = flag.Bool("clear", false, "clear stored fault codes and exit")
		listModels  = flag.Bool("models", false, "list known vehicle models and exit")
		waitTimeout = flag.Duration("wait", 5*time.Minute, "maximum session duration")
	)
	flag.Parse()

	if *listModels {
		for _, name := range vehicle.Names() {
			fmt.Println(name)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *kind != "" {
		cfg.Connection.Kind = *kind
	}
	if *address != "" {
		cfg.Connection.Address = *address
	}
	if cfg.Connection.Address == "" {
		log.Fatal("no adapter address configured, use -address or a config file")
	}

	trace, err := debug.New(cfg.Session.TraceLog)
	if err != nil {
		log.Fatal(err)
	}
	defer trace.Close()

	client := adapter.New(adapter.Config{
		Descriptor: adapter.Descriptor{
			Kind:    adapter.Kind(cfg.Connection.Kind),
			Address: cfg.Connection.Address,
			Port:    cfg.Connection.Port,
			Baud:    cfg.Connection.BaudRate,
			Timeout: cfg.Connection.Timeout(),
		},
		OnMessage: func(msg string) { log.Println("[adapter]", msg) },
		OnError:   func(err error) { log.Println("[adapter]", err) },
		Trace:     trace,
	})
	defer client.Disconnect()

	if *clearCodes {
		if err := runClear(client, cfg.Session.CommandWait()); err != nil {
			log.Fatal(err)
		}
		fmt.Println("fault codes cleared")
		return
	}

	bus := ebus.New()
	defer bus.Close()
	unsub := bus.SubscribeFunc(ebus.TopicProgress, func(ev ebus.Event) {
		log.Printf("[session] progress %.0f%%", ev.Value)
	})
	defer unsub()

	sess, err := session.New(session.Config{
		Transport:          client,
		Vehicle:            resolveVehicle(cfg.Vehicle),
		Codes:              dtc.BuiltIn(),
		Bus:                bus,
		DeepScan:           cfg.Session.DeepScan,
		TestActuators:      cfg.Session.TestActuators,
		PerformAdaptations: cfg.Session.PerformAdaptations,
		CommandWait:        cfg.Session.CommandWait(),
		CSVPath:            cfg.Session.CSVLog,
		OnMessage:          func(msg string) { log.Println("[session]", msg) },
	})
	if err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("interrupt, cancelling session")
		sess.Cancel()
	}()

	if err := sess.Start(); err != nil {
		log.Fatal(err)
	}
	res, err := sess.Wait(*waitTimeout)
	printReport(res)
	if err != nil {
		log.Println("session:", err)
		os.Exit(1)
	}
}

func runClear(client *adapter.Client, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := client.Connect(ctx); err != nil {
		return err
	}
	return session.ClearFaultCodes(ctx, client, wait)
}

func resolveVehicle(vc config.VehicleConfig) vehicle.Model {
	if len(vc.ECUs) > 0 {
		m := vehicle.Model{Name: "custom", Protocol: "0"}
		for _, e := range vc.ECUs {
			m.ECUs = append(m.ECUs, vehicle.ECUAddress{Name: e.Name, Addr: e.Addr})
		}
		return m
	}
	if m, ok := vehicle.Lookup(vc.Model); ok {
		return m
	}
	log.Printf("unknown vehicle model %q, using generic", vc.Model)
	return vehicle.Generic()
}

func printReport(res *session.Result) {
	fmt.Println()
	fmt.Println("=== Diagnostic Report ===")
	fmt.Printf("vehicle:  %s\n", res.Vehicle)
	fmt.Printf("adapter:  %s (%s)\n", res.Device.Identification, res.Device.Protocol)
	if res.SupplyVoltage != "" {
		fmt.Printf("battery:  %s\n", res.SupplyVoltage)
	}
	fmt.Printf("duration: %s\n", res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond))

	if len(res.ECUs) > 0 {
		fmt.Println("\n--- Control Units ---")
		for _, e := range res.ECUs {
			line := fmt.Sprintf("%-30s %02X  %-15s %s", e.Name, e.Addr, e.Status, e.ResponseTime.Round(time.Millisecond))
			if e.Identification != "" {
				line += "  " + e.Identification
			}
			fmt.Println(line)
		}
	}

	fmt.Println("\n--- Fault Codes ---")
	if len(res.DTCs.Codes) == 0 {
		fmt.Println("none stored")
	}
	for _, d := range res.DTCs.Codes {
		fmt.Printf("%s [%s, %s] %s\n", d.Code, d.Origin, d.Severity, d.Description)
		if ff := d.FreezeFrame; ff != nil {
			var parts []string
			if ff.RPM != nil {
				parts = append(parts, fmt.Sprintf("rpm %.0f", *ff.RPM))
			}
			if ff.Speed != nil {
				parts = append(parts, fmt.Sprintf("speed %.0f km/h", *ff.Speed))
			}
			if ff.Coolant != nil {
				parts = append(parts, fmt.Sprintf("coolant %.0f °C", *ff.Coolant))
			}
			if len(parts) > 0 {
				fmt.Printf("  freeze frame: %s\n", strings.Join(parts, ", "))
			}
		}
	}

	if len(res.LiveData.Statistics) > 0 {
		fmt.Printf("\n--- Live Data (%d cycles) ---\n", res.LiveData.Cycles)
		fmt.Printf("%-32s %10s %10s %10s %10s\n", "parameter", "mean", "min", "max", "stability")
		for _, st := range res.LiveData.Statistics {
			name := st.Name
			if st.Derived {
				name += " *"
			}
			fmt.Printf("%-32s %10.2f %10.2f %10.2f %9.0f%%\n", name, st.Mean, st.Min, st.Max, st.Stability)
		}
	}

	if len(res.Sensors) > 0 {
		fmt.Println("\n--- Sensor Tests ---")
		for _, s := range res.Sensors {
			fmt.Printf("%-10s %s\n", s.Verdict, s.Message)
		}
	}

	if len(res.Actuators) > 0 {
		fmt.Println("\n--- Actuator Tests ---")
		for _, a := range res.Actuators {
			outcome := "failed"
			if a.Success {
				outcome = "ok"
			}
			fmt.Printf("%-40s %s\n", a.Name, outcome)
		}
	}

	if len(res.Adaptations) > 0 {
		fmt.Println("\n--- Adaptations ---")
		for _, a := range res.Adaptations {
			switch {
			case !a.Performed:
				fmt.Printf("%-40s skipped: %s\n", a.Name, a.Reason)
			case a.Success:
				fmt.Printf("%-40s done\n", a.Name)
			default:
				fmt.Printf("%-40s failed: %s\n", a.Name, a.Reason)
			}
		}
	}

	fmt.Printf("\nhealth: %d/100 (%s)\n", res.Health.Score, res.Health.Verdict)
	for _, r := range res.Recommendations {
		fmt.Println("  *", r)
	}
	for _, w := range res.Warnings {
		fmt.Println("  ! warning:", w)
	}
	for _, e := range res.Errors {
		fmt.Println("  ! error:", e)
	}
}

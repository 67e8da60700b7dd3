package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"restaurant-system/internal/admin"
	"restaurant-system/internal/dispatcher"
	"restaurant-system/internal/notsub"
	"restaurant-system/internal/order"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"
)

type mode struct {
	name    string
	execute func(ctx context.Context, mylog logger.Logger, args []string) error
}

var modes = map[string]mode{
	"order-service":           {"order-service", order.Execute},
	"os":                      {"order-service", order.Execute},
	"worker-dispatcher":       {"worker-dispatcher", dispatcher.Execute},
	"wd":                      {"worker-dispatcher", dispatcher.Execute},
	"notification-subscriber": {"notification-subscriber", notsub.Execute},
	"ns":                      {"notification-subscriber", notsub.Execute},
	"migrate":                 {"migrate", admin.Migrate},
	"issue-token":             {"issue-token", admin.IssueToken},
}

func main() {
	mylogger, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("log error: %v", err)
	}

	// Global flags for selecting the service mode
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	modeFlag := fs.String("mode", "", "service to run: order-service | worker-dispatcher | notification-subscriber | migrate | issue-token")

	args := os.Args[1:]
	modeArgs, remainingArgs := splitMode(args)
	if err := fs.Parse(modeArgs); err != nil {
		mylogger.Action("restaurant_system_failed").Error("Failed to parse flags", err)
		help(fs)
		os.Exit(2)
	}

	if *modeFlag == "" {
		mylogger.Action("restaurant_system_failed").Error("Failed to start restaurant system", xerrors.ErrModeFlag)
		help(fs)
		os.Exit(2)
	}

	m, ok := modes[*modeFlag]
	if !ok {
		mylogger.Action("restaurant_system_failed").Error("Failed to start restaurant system", xerrors.ErrUnknownService, "mode", *modeFlag)
		help(fs)
		os.Exit(2)
	}

	l := mylogger.With("service", m.name)
	l.Action(actionName(m.name, "started")).Info("Successfully started")
	if err := m.execute(context.Background(), l, remainingArgs); err != nil {
		if errors.Is(err, xerrors.ErrHelp) {
			return
		}
		l.Action(actionName(m.name, "failed")).Error("Error in "+m.name, err)
		os.Exit(1)
	}
	l.Action(actionName(m.name, "completed")).Info("Successfully completed")
}

// splitMode separates the --mode flag from the arguments meant for the
// selected service. Both "--mode x" and "--mode=x" are accepted.
func splitMode(args []string) (modeArgs, rest []string) {
	for i, arg := range args {
		if !strings.HasPrefix(arg, "--mode") && !strings.HasPrefix(arg, "-mode") {
			continue
		}
		end := i + 1
		if !strings.Contains(arg, "=") && end < len(args) {
			end++
		}
		rest = append(append(rest, args[:i]...), args[end:]...)
		return args[i:end], rest
	}
	return nil, args
}

func actionName(service, event string) string {
	return strings.ReplaceAll(service, "-", "_") + "_" + event
}

func help(fs *flag.FlagSet) {
	fmt.Println("\nUsage:")
	fs.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  ./restaurant-system --mode=migrate --seed=products.yaml")
	fmt.Println("  ./restaurant-system --mode=order-service --port=3000 --max-concurrent=50")
	fmt.Println("  ./restaurant-system --mode=worker-dispatcher --worker-name=wd-1 --prefetch=1")
	fmt.Println("  ./restaurant-system --mode=notification-subscriber --subscriber=console")
	fmt.Println("  ./restaurant-system --mode=issue-token --user=m-1 --role=manager")
}

// Command fareclient queries a running fare estimation service.
//
//	fareclient [-addr URL] predict -origin CGK -destination DPS -date 24/03/2019 ...
//	fareclient [-addr URL] schedule -origin CGK -destination DPS -date 2019-03-24 -dep 22:20 -arr 01:10
//	fareclient [-addr URL] airports [-q bali] [-limit 10]
//	fareclient [-addr URL] health
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/aldikf/airfare-price-service/internal/client"
	"github.com/aldikf/airfare-price-service/internal/models"
	"github.com/aldikf/airfare-price-service/internal/observability"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run executes one command. c is nil outside tests; a client for -addr is built then.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, c client.FareClient) int {
	global := flag.NewFlagSet("fareclient", flag.ContinueOnError)
	global.SetOutput(stderr)
	addr := global.String("addr", envOr("FARE_API_URL", "http://localhost:8080"), "service base URL")
	timeout := global.Duration("timeout", 5*time.Second, "per-request timeout")
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: fareclient [-addr URL] predict|schedule|airports|health [flags]")
		return exitUsage
	}

	if c == nil {
		hc, err := client.New(client.Config{BaseURL: *addr, Timeout: *timeout})
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		c = hc
	}
	ctx = observability.WithCorrelationID(ctx, uuid.New().String())

	cmd, rest := global.Arg(0), global.Args()[1:]
	var err error
	switch cmd {
	case "predict":
		err = runPredict(ctx, rest, stdout, stderr, c)
	case "schedule":
		err = runSchedule(ctx, rest, stdout, stderr, c)
	case "airports":
		err = runAirports(ctx, rest, stdout, stderr, c)
	case "health":
		err = runHealth(ctx, stdout, c)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		return exitUsage
	}
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v [%s]\n", cmd, err, client.CategorizeError(err))
		return exitError
	}
	return exitOK
}

// errUsage marks bad arguments; the flag set has already printed why.
var errUsage = errors.New("usage")

func runPredict(ctx context.Context, args []string, stdout, stderr io.Writer, c client.FareClient) error {
	defaults := models.DefaultFormOptions().Defaults
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	req := client.PredictionRequest{}
	fs.StringVar(&req.Airline, "airline", defaults.Airline, "airline")
	fs.StringVar(&req.TravelDate, "date", defaults.TravelDate, "travel date, dd/mm/yyyy")
	fs.StringVar(&req.DepartureTime, "dep", defaults.DepartureTime, "departure time, HH:MM")
	fs.StringVar(&req.ArrivalTime, "arr", defaults.ArrivalTime, "arrival time, HH:MM with optional date")
	fs.StringVar(&req.Duration, "duration", defaults.Duration, "duration, e.g. 2h 50m")
	fs.StringVar(&req.Transit, "transit", defaults.Transit, "transit, e.g. non-stop")
	fs.StringVar(&req.InfoNote, "info", defaults.InfoNote, "fare note")
	fs.StringVar(&req.Origin, "origin", "", "origin airport code or label")
	fs.StringVar(&req.Destination, "destination", "", "destination airport code or label")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if req.Origin == "" || req.Destination == "" {
		fmt.Fprintln(stderr, "predict: -origin and -destination are required")
		return errUsage
	}
	p, err := c.Predict(ctx, req)
	if err != nil {
		return err
	}
	printPrediction(stdout, p)
	return nil
}

func runSchedule(ctx context.Context, args []string, stdout, stderr io.Writer, c client.FareClient) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(stderr)
	req := client.ScheduleRequest{}
	fs.StringVar(&req.Airline, "airline", "", "airline")
	fs.StringVar(&req.Date, "date", "", "travel date, yyyy-mm-dd")
	fs.StringVar(&req.DepartureTime, "dep", "", "departure time, HH:MM")
	fs.StringVar(&req.ArrivalTime, "arr", "", "arrival time, HH:MM")
	fs.StringVar(&req.Transit, "transit", "non-stop", "transit")
	fs.StringVar(&req.InfoNote, "info", "", "fare note")
	fs.StringVar(&req.Origin, "origin", "", "origin airport code or label")
	fs.StringVar(&req.Destination, "destination", "", "destination airport code or label")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	p, err := c.PredictSchedule(ctx, req)
	if err != nil {
		return err
	}
	printPrediction(stdout, p)
	return nil
}

func runAirports(ctx context.Context, args []string, stdout, stderr io.Writer, c client.FareClient) error {
	fs := flag.NewFlagSet("airports", flag.ContinueOnError)
	fs.SetOutput(stderr)
	q := fs.String("q", "", "search text")
	limit := fs.Int("limit", 0, "maximum results")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	list, err := c.SearchAirports(ctx, *q, *limit)
	if err != nil {
		return err
	}
	for _, a := range list {
		fmt.Fprintf(stdout, "%-4s %s\n", a.Code, a.Label)
	}
	return nil
}

func runHealth(ctx context.Context, stdout io.Writer, c client.FareClient) error {
	h, err := c.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "status: %s\n", h.Status)
	if h.Reason != "" {
		fmt.Fprintf(stdout, "reason: %s\n", h.Reason)
	}
	if h.Status != "healthy" {
		return fmt.Errorf("service is %s", h.Status)
	}
	return nil
}

func printPrediction(w io.Writer, p client.Prediction) {
	fmt.Fprintf(w, "%s -> %s (%s)\n", p.Origin.Label, p.Destination.Label, p.DistanceDisplay)
	fmt.Fprintf(w, "estimate: %s\n", p.EstimateDisplay)
	fmt.Fprintf(w, "range:    %s %.0f - %.0f\n", p.Currency, p.LowerBound, p.UpperBound)
	if p.Cached {
		fmt.Fprintln(w, "(cached)")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	msprime "github.com/dp-rice/msprime-lambda"
)

func main() {
	loggerType := flag.String("logger", "csv", "data logger type (csv|sqlite)")
	seedNum := flag.Int64("seed", time.Now().UTC().UnixNano(), "random seed for mutation generation. Uses Unix time in nanoseconds as default")
	debugDemography := flag.Bool("debug-demography", false, "print the epoch structure of the demographic model and exit")
	flag.Parse()

	// The engine owns its own generator; the global source only feeds
	// the mutation generator.
	rand.Seed(*seedNum)

	// Load config file
	configPath := flag.Arg(0)
	conf, err := msprime.LoadSimulationConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	// Validate configuration
	err = conf.Validate()
	if err != nil {
		log.Fatal(err)
	}

	if *debugDemography {
		events, err := conf.DemographicEvents()
		if err != nil {
			log.Fatal(err)
		}
		msprime.NewDemographyDebugger(events).Print(os.Stdout)
		return
	}

	firstStart := time.Now()
	for i := 1; i <= conf.NumReplicates(); i++ {
		log.Printf("starting replicate %03d\n", i)
		start := time.Now()
		// Create a new logger for every replicate
		var logger msprime.DataLogger
		switch *loggerType {
		case "csv":
			logger = msprime.NewCSVLogger(conf.LogPath(), i)
		case "sqlite":
			logger = msprime.NewSQLiteLogger(conf.LogPath(), i)
		default:
			log.Fatalf("%s is not a valid logger type (csv|sqlite)", *loggerType)
		}
		if err := logger.Init(); err != nil {
			log.Fatal(err)
		}
		sim, err := conf.NewSimulation(i)
		if err != nil {
			log.Fatal(err)
		}
		ts, err := sim.Run()
		if err != nil {
			log.Fatalf("replicate %03d: %v", i, err)
		}
		var mutations []msprime.Mutation
		if rate := conf.MutationRate(); rate > 0 {
			mutations = msprime.GenerateMutations(ts, rate)
		}
		msprime.LogTreeSequence(logger, i, ts, mutations)
		log.Printf("replicate %03d finished in %s (%d records, %d mutations)\n",
			i, time.Since(start), len(ts.Records()), len(mutations))
	}
	log.Printf("all replicates finished in %s\n", time.Since(firstStart))
}

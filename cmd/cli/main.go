package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/yaml.v3"

	"github.com/hive-corporation/threatpulse/internal/adapter/handler"
	"github.com/hive-corporation/threatpulse/internal/core/domain"
)

func main() {
	targetFile := flag.String("file", "simulations.yaml", "Path to a JSON or YAML list of threat simulations")
	serverAddr := flag.String("server", "", "Optional threatpulse gRPC address to health-check first")
	flag.Parse()

	if *serverAddr != "" {
		if err := checkHealth(*serverAddr); err != nil {
			fmt.Fprintf(os.Stderr, "error checking %s: %v\n", *serverAddr, err)
			os.Exit(2)
		}
	}

	sims, err := readSimulations(*targetFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading %s: %v\n", *targetFile, err)
		os.Exit(2)
	}

	fmt.Printf("scoring %d simulations from %s\n\n", len(sims), *targetFile)

	escalations, invalid := 0, 0
	for _, sim := range sims {
		urgency, err := domain.ComputeUrgency(sim.ThreatLevel, sim.LikelihoodScore)
		if err != nil {
			fmt.Printf("[INVALID]  %-40s %v\n", label(sim), err)
			invalid++
			continue
		}
		activate, _ := domain.ShouldAutoActivate(sim)
		if activate {
			fmt.Printf("[ESCALATE] %-40s score %.2f (%s)\n", label(sim), urgency.Score, urgency.Tier)
			escalations++
		} else {
			fmt.Printf("[WATCH]    %-40s score %.2f (%s)\n", label(sim), urgency.Score, urgency.Tier)
		}
	}

	fmt.Println("------------------------------------------------")
	fmt.Printf("%d scored, %d would auto-activate, %d invalid\n", len(sims)-invalid, escalations, invalid)
	if escalations > 0 {
		os.Exit(1)
	}
}

// readSimulations accepts a JSON or YAML list. YAML goes through JSON so
// both formats share the same field names.
func readSimulations(path string) ([]domain.ThreatSimulation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		if raw, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("unsupported YAML content: %w", err)
		}
	}

	var sims []domain.ThreatSimulation
	if err := json.Unmarshal(raw, &sims); err != nil {
		return nil, fmt.Errorf("expected a list of simulations: %w", err)
	}
	return sims, nil
}

func label(sim domain.ThreatSimulation) string {
	name := sim.Topic
	if sim.ID != "" {
		name = sim.ID + " " + name
	}
	return domain.Excerpt(name, 40)
}

func checkHealth(addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: handler.ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("pipeline is %s", resp.GetStatus())
	}
	fmt.Printf("pipeline at %s is serving\n", addr)
	return nil
}

// Command score runs customer records through the configured model offline.
// Input is a stream of JSON objects, one result line is written per record.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"purchaseprob/config"
	"purchaseprob/logging"
	"purchaseprob/ml"
)

type options struct {
	modelType string
	modelPath string
	label     string
	threshold float64
}

type result struct {
	Prob *float64 `json:"prob,omitempty"`
	Erro string   `json:"Erro,omitempty"`
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	modelType := flag.String("model-type", "", "override model.type from the config")
	modelPath := flag.String("model-path", "", "override model.path from the config")
	input := flag.String("input", "-", "JSON records to score, - for stdin")
	label := flag.String("label", "", "record key holding the observed 0/1 outcome, enables evaluation")
	threshold := flag.Float64("threshold", 0.5, "probability cut-off used for evaluation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Results go to stdout, keep the log off it.
	logger, err := logging.NewWithOutput(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	opts := options{
		modelType: cfg.Model.Type,
		modelPath: cfg.Model.Path,
		label:     *label,
		threshold: *threshold,
	}
	if *modelType != "" {
		opts.modelType = *modelType
	}
	if *modelPath != "" {
		opts.modelPath = *modelPath
	}

	model, err := ml.LoadModel(opts.modelType, opts.modelPath)
	if err != nil {
		logger.Fatal("failed to load model", zap.String("path", opts.modelPath), zap.Error(err))
	}

	in := io.Reader(os.Stdin)
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			logger.Fatal("failed to open input", zap.Error(err))
		}
		defer f.Close()
		in = f
	}

	stats, err := run(context.Background(), model, in, os.Stdout, opts)
	if err != nil {
		logger.Fatal("scoring aborted", zap.Int("scored", stats.scored), zap.Error(err))
	}
	logger.Info("scoring finished",
		zap.String("model", model.Info()),
		zap.Int("records", stats.records),
		zap.Int("scored", stats.scored),
	)
	if stats.labelled > 0 {
		accuracy, precision, recall := stats.evaluate()
		logger.Info("evaluation",
			zap.Int("labelled", stats.labelled),
			zap.Float64("accuracy", accuracy),
			zap.Float64("precision", precision),
			zap.Float64("recall", recall),
		)
	}
}

type runStats struct {
	records  int
	scored   int
	labelled int

	correct           int
	truePositive      int
	predictedPositive int
	actualPositive    int
}

// run scores every object in r and writes one result line per record to w.
// Record level failures are reported inline, only malformed JSON stops the run.
func run(ctx context.Context, model ml.Classifier, r io.Reader, w io.Writer, opts options) (runStats, error) {
	var stats runStats
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	encoder := json.NewEncoder(w)

	for {
		var payload map[string]any
		if err := decoder.Decode(&payload); err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("record %d: %w", stats.records+1, err)
		}
		stats.records++

		actual, hasLabel := popLabel(payload, opts.label)
		p, err := ml.Score(ctx, model, payload)
		if err != nil {
			if err := encoder.Encode(result{Erro: ml.ErrorMessage(err)}); err != nil {
				return stats, err
			}
			continue
		}
		stats.scored++
		pct := ml.ProbabilityPercent(p)
		if err := encoder.Encode(result{Prob: &pct}); err != nil {
			return stats, err
		}
		if hasLabel {
			stats.observe(p >= opts.threshold, actual)
		}
	}
}

func popLabel(payload map[string]any, key string) (bool, bool) {
	if key == "" {
		return false, false
	}
	raw, ok := payload[key]
	if !ok {
		return false, false
	}
	delete(payload, key)

	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return err == nil && f >= 0.5, err == nil
	case bool:
		return v, true
	}
	return false, false
}

func (s *runStats) observe(predicted, actual bool) {
	s.labelled++
	if predicted == actual {
		s.correct++
	}
	if predicted {
		s.predictedPositive++
	}
	if actual {
		s.actualPositive++
		if predicted {
			s.truePositive++
		}
	}
}

func (s runStats) evaluate() (accuracy, precision, recall float64) {
	if s.labelled == 0 {
		return 0, 0, 0
	}
	accuracy = float64(s.correct) / float64(s.labelled)
	if s.predictedPositive > 0 {
		precision = float64(s.truePositive) / float64(s.predictedPositive)
	}
	if s.actualPositive > 0 {
		recall = float64(s.truePositive) / float64(s.actualPositive)
	}
	return accuracy, precision, recall
}
